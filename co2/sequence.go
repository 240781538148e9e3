package co2

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/airsense"
)

// sequence is one of the bus interaction patterns the SCD4x understands.
type sequence int

const (
	// sendCommand writes the register and waits.
	sendCommand sequence = iota
	// sendCommandAndFetch writes the register and one word, waits and reads one word back.
	sendCommandAndFetch
	// readWord writes the register, waits and reads one word.
	readWord
	// readThreeWords writes the register, waits and reads three words.
	readThreeWords
	// writeWord writes the register and one word, then waits.
	writeWord
)

func (s sequence) String() string {
	switch s {
	case sendCommand:
		return "send"
	case sendCommandAndFetch:
		return "send and fetch"
	case readWord:
		return "read word"
	case readThreeWords:
		return "read three words"
	case writeWord:
		return "write word"
	}
	return fmt.Sprintf("sequence(%d)", int(s))
}

func (s sequence) writesWord() bool {
	return s == sendCommandAndFetch || s == writeWord
}

// responseWords is the number of checksummed words read after the wait.
func (s sequence) responseWords() int {
	switch s {
	case sendCommandAndFetch, readWord:
		return 1
	case readThreeWords:
		return 3
	}
	return 0
}

// transaction carries what every bus exchange with one sensor needs.
type transaction struct {
	bus     airsense.I2CBus
	delayer airsense.Delayer
	address byte
	logger  *slog.Logger
}

// run performs a single write-wait-read exchange. The wait always happens,
// even for zero durations. Any checksum failure discards the whole response.
func (t *transaction) run(ctx context.Context, register uint16, wait time.Duration, seq sequence, payload uint16) ([]uint16, error) {
	out := make([]byte, 2, 5)
	binary.BigEndian.PutUint16(out, register)
	if seq.writesWord() {
		word := encodeWord(payload)
		out = append(out, word[:]...)
	}
	t.logger.Debug("scd4x write", "address", fmt.Sprintf("%#02x", t.address), "bytes", fmt.Sprintf("% x", out))
	if err := t.bus.WriteToAddr(ctx, t.address, out); err != nil {
		return nil, &TransportError{Op: "write", Address: t.address, Err: err}
	}

	t.logger.Debug("scd4x wait", "duration", wait)
	if err := t.delayer.Delay(ctx, wait); err != nil {
		return nil, err
	}

	n := seq.responseWords()
	if n == 0 {
		return nil, nil
	}
	in := make([]byte, 3*n)
	if err := t.bus.ReadFromAddr(ctx, t.address, in); err != nil {
		return nil, &TransportError{Op: "read", Address: t.address, Err: err}
	}
	t.logger.Debug("scd4x read", "address", fmt.Sprintf("%#02x", t.address), "bytes", fmt.Sprintf("% x", in))

	words := make([]uint16, n)
	for i := range words {
		word, err := decodeWord(in[3*i : 3*i+3])
		if err != nil {
			return nil, err
		}
		words[i] = word
	}
	return words, nil
}
