// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abilitylab/armctl/pkg/cubemars"
	"github.com/abilitylab/armctl/pkg/transport"
)

var scanTimeout time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Passively list the CAN traffic on the arm's channels",
	Long: `Listen on the shoulder and elbow channels and report every frame id seen.

Nothing is sent, so motors are never put into motor mode. Frames with id 0
are motor responses and are attributed to the motor whose id byte they carry.
Run this while another controller drives the arm to confirm addresses and
channel wiring.

Examples:
  armctl scan --interface socketcan
  armctl scan --interface slcan --port can0=/dev/ttyACM0,can1=/dev/ttyACM1

Fails when no response from a configured motor is seen before --timeout.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 5*time.Second, "Listening time")
}

type scanEntry struct {
	channel string
	id      uint32
	source  uint8 // response id byte, or the frame id for commands
	frames  int
	last    []byte
}

type scanResult struct {
	mu      sync.Mutex
	entries map[string]*scanEntry
}

func (r *scanResult) add(channel string, f transport.Frame) {
	source := uint8(f.ID)
	if f.ID == 0 && len(f.Data) > 0 {
		source = f.Data[0]
	}
	key := fmt.Sprintf("%s/%03X/%02X", channel, f.ID, source)

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &scanEntry{channel: channel, id: f.ID, source: source}
		r.entries[key] = e
		fmt.Printf("  new: channel %s id=0x%03X source=0x%02X\n", channel, f.ID, source)
	}
	e.frames++
	e.last = append(e.last[:0], f.Data...)
}

func (r *scanResult) sorted() []*scanEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*scanEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].channel != out[j].channel {
			return out[i].channel < out[j].channel
		}
		if out[i].id != out[j].id {
			return out[i].id < out[j].id
		}
		return out[i].source < out[j].source
	})
	return out
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	ctx, stop := context.WithTimeout(ctx, scanTimeout)
	defer stop()

	tr, err := OpenTransport(false)
	if err != nil {
		return err
	}

	fmt.Printf("armctl - Bus Scan\n")
	fmt.Printf("Bus: %s\n", tr.Describe())
	fmt.Printf("Channels: %s, %s\n", cfg.Shoulder.Channel, cfg.Elbow.Channel)
	fmt.Printf("Timeout: %v\n\n", scanTimeout)

	result := &scanResult{entries: make(map[string]*scanEntry)}
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range []cubemars.Limits{cfg.Shoulder, cfg.Elbow} {
		l := l
		g.Go(func() error {
			return listen(gctx, tr, l.Channel, result)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\n--- Scan summary ---\n")
	entries := result.sorted()
	fmt.Printf("Distinct sources: %d\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  %-6s id=0x%03X source=0x%02X frames=%d\n", e.channel, e.id, e.source, e.frames)
	}

	found := 0
	for _, l := range []cubemars.Limits{cfg.Shoulder, cfg.Elbow} {
		status := "not seen"
		for _, e := range entries {
			if e.channel != l.Channel || e.id != 0 || e.source != l.Address {
				continue
			}
			status = fmt.Sprintf("%d responses", e.frames)
			if tel, err := cubemars.DecodeTelemetry(e.last, l); err == nil {
				status += ", last " + cubemars.FormatTelemetry(tel)
			}
			found++
		}
		fmt.Printf("%s: %s\n", l, status)
	}
	if found == 0 {
		return errors.New("no configured motor responded, check wiring and power")
	}
	return nil
}

// listen records frames on one channel until ctx ends.
func listen(ctx context.Context, tr transport.Transport, channel string, result *scanResult) error {
	ch, err := tr.Open(channel)
	if err != nil {
		return err
	}
	defer ch.Close()

	for ctx.Err() == nil {
		f, err := ch.Recv(dumpPoll)
		switch {
		case err == nil:
			result.add(channel, f)
		case errors.Is(err, transport.ErrTimeout):
		case errors.Is(err, transport.ErrClosed):
			return err
		default:
			logger.Debugw("scan receive error", "channel", channel, "error", err)
		}
	}
	return nil
}
