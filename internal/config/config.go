// Package config loads process configuration and translates it into
// the bus.CONFIG messages that are the session engine's only
// configuration surface (spec.md §6). The flag/env layer is just how a
// real process populates that surface; CONFIG stays the single source
// of truth.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/dnscat2go/dnstunnel/internal/bus"
	"github.com/dnscat2go/dnstunnel/internal/pump"
	"github.com/dnscat2go/dnstunnel/internal/session"
)

// Options holds the process's startup configuration, the package-level
// var-driven style of the teacher's main.go generalized into a struct
// since this module has more than three knobs.
type Options struct {
	MaxPacketLength int
	HeartbeatPeriod time.Duration
	SessionName     string
	Download        string
	IsCommand       bool
	MetricsAddr     string
}

// Defaults returns the Options a bare `dnstunnel` invocation starts
// with: no download (normal two-way session), the protocol's default
// packet size, and the pump's default cadence.
func Defaults() Options {
	return Options{
		MaxPacketLength: session.DefaultMaxPacketLength,
		HeartbeatPeriod: pump.DefaultInterval,
		MetricsAddr:     ":9090",
	}
}

// ParseFlags parses args (normally os.Args[1:]) on top of Defaults(),
// then applies DNSTUNNEL_*-prefixed environment overrides, matching
// the teacher's flat package-level config pattern but exposed as a
// pure function so tests don't touch the process's real flag.CommandLine.
func ParseFlags(args []string) (Options, error) {
	opts := Defaults()

	fs := flag.NewFlagSet("dnstunnel", flag.ContinueOnError)
	fs.IntVar(&opts.MaxPacketLength, "max-packet-length", opts.MaxPacketLength, "maximum encoded packet size in bytes")
	fs.DurationVar(&opts.HeartbeatPeriod, "heartbeat", opts.HeartbeatPeriod, "heartbeat pump cadence")
	fs.StringVar(&opts.SessionName, "name", opts.SessionName, "session name advertised in SYN")
	fs.StringVar(&opts.Download, "download", opts.Download, "filename to request in chunked-download mode; empty disables it")
	fs.BoolVar(&opts.IsCommand, "command", opts.IsCommand, "set the is_command SYN flag")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", opts.MetricsAddr, "address to serve /metrics on")
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	applyEnvOverrides(&opts)
	return opts, nil
}

func applyEnvOverrides(opts *Options) {
	if v, ok := os.LookupEnv("DNSTUNNEL_MAX_PACKET_LENGTH"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxPacketLength = n
		}
	}
	if v, ok := os.LookupEnv("DNSTUNNEL_HEARTBEAT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			opts.HeartbeatPeriod = d
		}
	}
	if v, ok := os.LookupEnv("DNSTUNNEL_NAME"); ok {
		opts.SessionName = v
	}
	if v, ok := os.LookupEnv("DNSTUNNEL_DOWNLOAD"); ok {
		opts.Download = v
	}
	if v, ok := os.LookupEnv("DNSTUNNEL_METRICS_ADDR"); ok {
		opts.MetricsAddr = v
	}
}

// PostConfig translates opts into the one-time CONFIG posts the engine
// expects at startup (spec.md §6; handleConfig in internal/session
// currently recognizes max_packet_length).
func PostConfig(poster bus.Poster, opts Options) {
	poster.Post(bus.ConfigMsg{
		Name:     "max_packet_length",
		Type:     bus.ConfigInt,
		IntValue: opts.MaxPacketLength,
	})
}
