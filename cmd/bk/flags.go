package main

import "github.com/simp-lee/bk/internal/config"

// Flags holds the global command line options.
type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string
	Width      int
	Meta       bool
	TOC        bool

	// Config is loaded in the Before hook.
	Config *config.Config
}
