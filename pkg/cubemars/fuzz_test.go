// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cubemars

import (
	"math"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// uniform returns a value in [min-margin, max+margin] so that some samples
// fall outside the range and exercise clamping.
func uniform(rng *rand.Rand, min, max float64) float64 {
	margin := (max - min) * 0.25
	return min - margin + rng.Float64()*(max-min+2*margin)
}

// ============================================================
// Codec Fuzz Tests
// ============================================================

// TestFuzzCommand_RoundTrip encodes random commands and checks every decoded
// field lies within one quantum of the clamped input.
func TestFuzzCommand_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	names := ModelNames()

	for i := 0; i < rounds; i++ {
		l := Models[names[rng.Intn(len(names))]]
		q := l.Quantum()

		cmd := Command{
			Position: uniform(rng, l.PMin, l.PMax),
			Velocity: uniform(rng, l.VMin, l.VMax),
			Kp:       uniform(rng, l.KpMin, l.KpMax),
			Kd:       uniform(rng, l.KdMin, l.KdMax),
			Torque:   uniform(rng, l.TMin, l.TMax),
		}

		payload := EncodeCommand(cmd, l)
		if ReservedName(payload) != "" {
			continue
		}
		got, err := DecodeCommand(payload, l)
		if err != nil {
			t.Fatalf("round %d: DecodeCommand failed: %v", i, err)
		}

		pairs := []struct {
			field      string
			got, want  float64
			min, max   float64
			resolution float64
		}{
			{"position", got.Position, cmd.Position, l.PMin, l.PMax, q.Position},
			{"velocity", got.Velocity, cmd.Velocity, l.VMin, l.VMax, q.Velocity},
			{"kp", got.Kp, cmd.Kp, l.KpMin, l.KpMax, q.Kp},
			{"kd", got.Kd, cmd.Kd, l.KdMin, l.KdMax, q.Kd},
			{"torque", got.Torque, cmd.Torque, l.TMin, l.TMax, q.Torque},
		}
		for _, p := range pairs {
			want := Clamp(p.want, p.min, p.max)
			if math.Abs(p.got-want) > p.resolution+1e-9 {
				t.Fatalf("round %d (%s): %s = %v, want %v ± %v", i, l.Model, p.field, p.got, want, p.resolution)
			}
		}
	}
}

// TestFuzzDecodeTelemetry_RandomBytes feeds random payloads to the decoder
// and verifies it never panics and only accepts well-formed responses.
func TestFuzzDecodeTelemetry_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	l := Models[ModelAK7010]

	for i := 0; i < rounds; i++ {
		payload := make([]byte, rng.Intn(12))
		rng.Read(payload)

		tel, err := DecodeTelemetry(payload, l)
		wellFormed := (len(payload) == ResponseSize || len(payload) == ExtendedResponseSize) &&
			payload[0] == l.Address

		if wellFormed && err != nil {
			t.Fatalf("round %d: unexpected error for % X: %v", i, payload, err)
		}
		if !wellFormed && err == nil {
			t.Fatalf("round %d: accepted malformed payload % X", i, payload)
		}
		if err == nil {
			if tel.Position < l.PMin || tel.Position > l.PMax+1e-9 {
				t.Fatalf("round %d: position %v out of range", i, tel.Position)
			}
			if tel.Torque < l.TMin || tel.Torque > l.TMax+1e-9 {
				t.Fatalf("round %d: torque %v out of range", i, tel.Torque)
			}
		}
	}
}
