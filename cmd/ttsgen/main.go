package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'generate', 'inspect', 'voices' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "voices":
		err = runVoices(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runGenerate(args []string) error {
	var configPath, text, voiceID, voiceName, mode, out string
	cmd := flag.NewFlagSet("generate", flag.ExitOnError)
	cmd.StringVar(&configPath, "config", "", "Path to configuration file (defaults apply when empty)")
	cmd.StringVar(&text, "text", "", "Text to speak")
	cmd.StringVar(&voiceID, "voice-id", "local-default", "Voice id; ids with the online prefix use enhanced synthesis")
	cmd.StringVar(&voiceName, "voice-name", "", "Voice display name (defaults to the catalog name)")
	cmd.StringVar(&mode, "mode", "", "Force basic or enhanced synthesis instead of selecting by voice id")
	cmd.StringVar(&out, "out", "", "Output file (defaults to the generated filename)")
	cmd.Parse(args)

	if text == "" && cmd.NArg() > 0 {
		text = cmd.Arg(0)
	}
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	engine := tts.NewEngine(cfg.TTS, tts.NewCatalog(cfg.Voices, cfg.TTS.OnlinePrefix), nil, logger)

	res, err := engine.Generate(context.Background(), tts.Request{Text: text, VoiceID: voiceID, VoiceName: voiceName, Mode: mode})
	if err != nil {
		return err
	}
	if out == "" {
		out = res.Filename
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(out, res.WAV, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("%s: %s mode, voice %q, %d samples (%s)\n", out, res.Mode, res.Voice.DisplayName, res.Samples, res.Duration)
	return nil
}

func runInspect(args []string) error {
	cmd := flag.NewFlagSet("inspect", flag.ExitOnError)
	cmd.Parse(args)
	if cmd.NArg() == 0 {
		return errors.New("inspect: expected one or more WAV files")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, path := range cmd.Args() {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		info, err := audio.Inspect(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := enc.Encode(struct {
			File string `json:"file"`
			audio.Info
		}{path, info}); err != nil {
			return err
		}
	}
	return nil
}

func runVoices(args []string) error {
	var configPath string
	cmd := flag.NewFlagSet("voices", flag.ExitOnError)
	cmd.StringVar(&configPath, "config", "", "Path to configuration file (defaults apply when empty)")
	cmd.Parse(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	for _, v := range tts.NewCatalog(cfg.Voices, cfg.TTS.OnlinePrefix).List() {
		fmt.Printf("%-16s %-8s %s\n", v.ID, v.Source, v.DisplayName)
	}
	return nil
}
