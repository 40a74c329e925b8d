// Command servo-host simulates, monitors and analyses servo motors.
//
//	servo-host model
//	servo-host sim [-config file] [-csv out.csv] [-png out.png] script
//	servo-host monitor [-config file] [-device /dev/ttyACM0] [-csv out.csv]
//	servo-host analyze [-png out.png] log.csv
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"gobricks/config"
)

var logLevel = flag.String("log-level", "info", "log level (debug, info, warn, error)")

func main() {
	flag.Usage = usage
	flag.Parse()
	log := newLogger(*logLevel)

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	args := flag.Args()[1:]
	var err error
	switch flag.Arg(0) {
	case "model":
		err = runModel(os.Stdout)
	case "sim":
		err = runSim(args, log)
	case "monitor":
		err = runMonitor(args, log)
	case "analyze":
		err = runAnalyze(args, os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Msg(flag.Arg(0) + " failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-log-level level] model|sim|monitor|analyze [flags]\n", os.Args[0])
	flag.PrintDefaults()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).With().Timestamp().Logger()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFile(path)
}
