package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gobricks/core"
	"gobricks/host/analysis"
	"gobricks/host/mcu"
	"gobricks/host/serial"
	"gobricks/host/stream"
)

func runMonitor(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	cfgPath := fs.String("config", "", "configuration (JSON)")
	device := fs.String("device", "", "serial device, overrides the configuration")
	csvPath := fs.String("csv", "", "append streamed samples to this CSV file")
	every := fs.Int("stream", 1, "stream every n-th control sample, 0 disables")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *device != "" {
		cfg.Serial.Port = *device
	}
	if cfg.Serial.Port == "" {
		return errors.New("no serial device configured")
	}

	m, err := mcu.Connect(serial.FromConfig(cfg.Serial), log)
	if err != nil {
		return err
	}
	defer m.Close()

	info, err := m.Identify()
	if err != nil {
		return err
	}
	for _, s := range info.Servos {
		log.Info().Str("version", info.Version).Uint8("servo", s.ID).Str("device", s.Device).Msg("connected")
	}
	if _, err := m.Execute(fmt.Sprintf("stream every=%d", *every)); err != nil {
		return err
	}

	var sinks stream.Fanout
	defer sinks.Close()
	if cfg.Stream.Websocket != "" {
		hub := stream.NewHub(log)
		sinks.Add(hub)
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		srv := &http.Server{Addr: cfg.Stream.Websocket, Handler: mux}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("websocket listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("websocket server")
			}
		}()
		defer srv.Close()
	}
	if cfg.Stream.MQTT != "" {
		mq, err := stream.DialMQTT(cfg.Stream, log)
		if err != nil {
			return err
		}
		sinks.Add(mq)
		err = mq.OnCommand(func(line string) {
			reply, err := m.Execute(line)
			logReply(log, line, reply, err)
		})
		if err != nil {
			return err
		}
	}

	var csvw *analysis.Writer
	if *csvPath != "" {
		f, err := os.OpenFile(*csvPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return errors.Wrap(err, "open csv")
		}
		defer f.Close()
		if csvw, err = analysis.NewWriter(f); err != nil {
			return err
		}
		defer csvw.Flush()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go readCommands(ctx, m, log, stop)
	return pump(ctx, m, csvw, &sinks, log)
}

// pump forwards everything the board sends until ctx ends or the link
// goes down.
func pump(ctx context.Context, m *mcu.MCU, csvw *analysis.Writer, sinks stream.Sink, log zerolog.Logger) error {
	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()
	var reported uint32
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.Done():
			return errors.New("link to board lost")
		case s := <-m.Samples():
			if csvw != nil {
				if err := csvw.Write(s); err != nil {
					return err
				}
			}
			if err := sinks.Publish(stream.PointFrom(s)); err != nil {
				log.Warn().Err(err).Msg("publish")
			}
		case e := <-m.Events():
			log.Info().Uint32("t", e.Time).Uint8("servo", e.ID).Str("event", core.EventName(e.Kind)).
				Int64("value", e.Value).Int32("aux", e.Aux).Msg("event")
		case st := <-m.Status():
			log.Debug().Uint8("servo", st.ID).Int64("angle", st.Angle).Int32("speed", st.Speed).
				Bool("done", st.Done).Bool("stalled", st.Stalled).Msg("status")
		case <-tick.C:
			if d := m.Dropped(); d != reported {
				log.Warn().Uint32("dropped", d-reported).Msg("host fell behind the sample stream")
				reported = d
			}
		}
	}
}

// readCommands sends stdin lines to the board. End of input stops the
// monitor.
func readCommands(ctx context.Context, m *mcu.MCU, log zerolog.Logger, stop func()) {
	defer stop()
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := sc.Text()
		if line == "quit" || line == "exit" {
			return
		}
		reply, err := m.Execute(line)
		logReply(log, line, reply, err)
		if err == nil && reply != "" {
			fmt.Println(reply)
		}
	}
}

func logReply(log zerolog.Logger, line, reply string, err error) {
	if err != nil {
		log.Warn().Err(err).Str("command", line).Msg("command failed")
		return
	}
	log.Debug().Str("command", line).Str("reply", reply).Msg("command")
}
