package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/theckman/yacspin"

	"github.com/labpod/golabpod/packet"
	"github.com/labpod/golabpod/scope"
)

// Config holds the connection and capture setup.  It is to be populated by
// a yaml/unmarshal call; the operation itself comes from the command line.
type Config struct {
	// Transport selects how to reach the pod: serial, usb or mock
	Transport string `yaml:"Transport"`

	// SerialAddr is the serial device path when Transport is serial
	SerialAddr string `yaml:"SerialAddr"`

	// Baud is the serial line rate
	Baud int `yaml:"Baud"`

	// TimeoutMS bounds each transport read in milliseconds
	TimeoutMS int `yaml:"TimeoutMS"`

	// Calibration is an optional yaml file overriding the factory calibration
	Calibration string `yaml:"Calibration"`

	// Map is the input bound to capture slot one, CH1 if empty
	Map string `yaml:"Map"`

	// Range selects the smallest slot-one range covering this many volts
	// when nonzero
	Range float64 `yaml:"Range"`

	// TriggerSource makes captures wait for a rising crossing on this
	// input when nonempty
	TriggerSource string `yaml:"TriggerSource"`

	// TriggerLevel is the crossing level in volts
	TriggerLevel float64 `yaml:"TriggerLevel"`

	// Format is the waveform encoding: csv, fits or json
	Format string `yaml:"Format"`

	// Output is the output path; empty for a timestamped name, - for stdout
	Output string `yaml:"Output"`
}

// loadconfig pulls the Config out of the koanf instance.
func loadconfig() Config {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	return c
}

// setupPod connects over the configured transport and applies the capture
// setup: the slot-one mapping, the range and the trigger.
func setupPod(c Config) (*scope.Scope, error) {
	cal := scope.DefaultCalibration()
	if c.Calibration != "" {
		var err error
		cal, err = scope.LoadCalibration(c.Calibration)
		if err != nil {
			return nil, err
		}
	}
	var h packet.Handler
	timeout := time.Duration(c.TimeoutMS) * time.Millisecond
	switch strings.ToLower(c.Transport) {
	case "mock":
		h = scope.NewSim()
	case "serial":
		dev := packet.NewDevice(c.SerialAddr, c.Baud, timeout)
		if err := dev.Open(); err != nil {
			return nil, err
		}
		h = dev
	case "usb":
		dev, err := packet.OpenUSB(packet.PodVID, packet.PodPID, timeout)
		if err != nil {
			return nil, err
		}
		h = dev
	default:
		return nil, fmt.Errorf("transport %q not understood, must be serial, usb or mock", c.Transport)
	}
	pod := scope.New(h, cal)
	if c.Map != "" {
		inp, err := scope.ParseInput(c.Map)
		if err != nil {
			return nil, err
		}
		if err := pod.SetChannelOneMap(inp); err != nil {
			return nil, err
		}
	}
	if c.Range > 0 {
		if _, err := pod.SelectRange(pod.ChannelOneMap(), c.Range); err != nil {
			return nil, err
		}
	}
	if c.TriggerSource != "" {
		inp, err := scope.ParseInput(c.TriggerSource)
		if err != nil {
			return nil, err
		}
		if err := pod.ConfigureTrigger(inp, c.TriggerLevel); err != nil {
			return nil, err
		}
	}
	return pod, nil
}

// spinner makes a terminal spinner with a fixed suffix.
func spinner(suffix string) (*yacspin.Spinner, error) {
	cfg := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[59],
		Suffix:            " " + suffix,
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		Writer:            os.Stderr,
	}
	return yacspin.New(cfg)
}

// outWriter opens the output destination, inventing a timestamped name if
// the config leaves it blank.  The returned string is the name written to.
func outWriter(c Config, ext string) (io.WriteCloser, string, error) {
	out := c.Output
	if out == "-" {
		return os.Stdout, "stdout", nil
	}
	if out == "" {
		out = fmt.Sprintf("pod-%s.%s", time.Now().Format("20060102-150405"), ext)
	}
	f, err := os.Create(out)
	return f, out, err
}

func doCapture(args []string) {
	if len(args) != 3 {
		log.Fatal("capture takes exactly three arguments: channels, samples, timegap_us")
	}
	channels, err := strconv.Atoi(args[0])
	if err != nil {
		log.Fatal("channels must be an integer: ", err)
	}
	samples, err := strconv.Atoi(args[1])
	if err != nil {
		log.Fatal("samples must be an integer: ", err)
	}
	timegap, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		log.Fatal("timegap must be a number of microseconds: ", err)
	}
	c := loadconfig()
	pod, err := setupPod(c)
	if err != nil {
		log.Fatal(err)
	}
	spin, err := spinner("capturing")
	if err != nil {
		log.Fatal(err)
	}
	spin.Start()
	spin.Message(fmt.Sprintf("%d ch x %d samples @ %g µs", channels, samples, timegap))
	wf, err := pod.Capture(channels, samples, timegap)
	if err != nil {
		spin.StopFail()
		log.Fatal(err)
	}
	spin.Stop()
	if err := writeWaveform(c, wf); err != nil {
		log.Fatal(err)
	}
}

// writeWaveform encodes the waveform per the configured format.
func writeWaveform(c Config, wf scope.Waveform) error {
	format := strings.ToLower(c.Format)
	if format == "" {
		format = "csv"
	}
	switch format {
	case "csv", "fits", "json":
	default:
		return fmt.Errorf("format %q not understood, must be csv, fits or json", c.Format)
	}
	w, name, err := outWriter(c, format)
	if err != nil {
		return err
	}
	switch format {
	case "csv":
		err = wf.EncodeCSV(w)
	case "fits":
		err = scope.WriteFITS(w, wf)
	default:
		err = json.NewEncoder(w).Encode(wf)
	}
	if w != os.Stdout {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}
	if err == nil && name != "stdout" {
		fmt.Fprintln(os.Stderr, "wrote", name)
	}
	return err
}

func doVoltage(args []string) {
	if len(args) != 1 {
		log.Fatal("voltage takes exactly one argument: the input name")
	}
	inp, err := scope.ParseInput(args[0])
	if err != nil {
		log.Fatal(err)
	}
	c := loadconfig()
	pod, err := setupPod(c)
	if err != nil {
		log.Fatal(err)
	}
	v, err := pod.ReadVoltage(inp)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s %.6f V\n", inp, v)
}

func doMonitor(args []string) {
	if len(args) != 3 {
		log.Fatal("monitor takes exactly three arguments: input, interval, duration")
	}
	inp, err := scope.ParseInput(args[0])
	if err != nil {
		log.Fatal(err)
	}
	interval, err := time.ParseDuration(args[1])
	if err != nil {
		log.Fatal("interval must be a duration like 500ms or 2s: ", err)
	}
	duration, err := time.ParseDuration(args[2])
	if err != nil {
		log.Fatal("duration must be a duration like 10m: ", err)
	}
	c := loadconfig()
	pod, err := setupPod(c)
	if err != nil {
		log.Fatal(err)
	}
	spin, err := spinner("monitoring " + inp.String())
	if err != nil {
		log.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	spin.Start()
	rec := scope.Recorder{Scope: pod, Input: inp, Interval: interval}
	recording, err := rec.Record(ctx, duration)
	if err != nil && !errors.Is(err, context.Canceled) {
		spin.StopFail()
		log.Fatal(err)
	}
	spin.Stop()
	w, name, err := outWriter(c, "csv")
	if err != nil {
		log.Fatal(err)
	}
	err = recording.EncodeCSV(w)
	if w != os.Stdout {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		log.Fatal(err)
	}
	if name != "stdout" {
		fmt.Fprintln(os.Stderr, "wrote", name)
	}
}
