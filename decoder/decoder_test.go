package decoder

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/justapithecus/chunkwire/metrics"
	"github.com/justapithecus/chunkwire/types"
)

func TestNew_Config(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    time.Duration
		wantErr bool
	}{
		{"default timeout", Config{}, DefaultTimeout, false},
		{"explicit timeout", Config{Timeout: time.Second}, time.Second, false},
		{"negative timeout", Config{Timeout: -1}, 0, true},
		{"negative max message size", Config{MaxMessageSize: -1}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("expected *ConfigError, got %T", err)
				}
				return
			}
			defer d.Destroy(nil)
			if d.Timeout() != tt.want {
				t.Errorf("Timeout() = %v, want %v", d.Timeout(), tt.want)
			}
		})
	}
}

func TestDecoder_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for _, chunkSize := range []int{25, 64, 1024, 2048} {
		d, rec := newDecoder(t, Config{})
		var sent [][]byte
		for range 20 {
			data := randomBytes(t, rng.IntN(8192))
			sent = append(sent, data)
			acceptAll(t, d, encode(t, chunkSize, data))
		}

		_, msgs, errs := rec.snapshot()
		if len(errs) != 0 {
			t.Fatalf("chunk size %d: unexpected errors %v", chunkSize, errs)
		}
		if len(msgs) != len(sent) {
			t.Fatalf("chunk size %d: got %d messages, want %d", chunkSize, len(msgs), len(sent))
		}
		for i := range sent {
			if !bytes.Equal(msgs[i].Data, sent[i]) {
				t.Errorf("chunk size %d: message %d differs from write", chunkSize, i)
			}
		}
	}
}

func TestDecoder_AllPermutations(t *testing.T) {
	data := []byte("0123456789abcdefghij")
	packets := encode(t, 30, data) // 6-byte payloads, 4 packets
	if len(packets) != 4 {
		t.Fatalf("got %d packets, want 4", len(packets))
	}

	for _, perm := range permutations(len(packets)) {
		d, rec := newDecoder(t, Config{})
		for _, i := range perm {
			if err := d.Accept(packets[i]); err != nil {
				t.Fatalf("perm %v: Accept failed: %v", perm, err)
			}
		}
		_, msgs, _ := rec.snapshot()
		if len(msgs) != 1 || !bytes.Equal(msgs[0].Data, data) {
			t.Errorf("perm %v: got %d messages, want one equal to the write", perm, len(msgs))
		}
	}
}

func TestDecoder_MegabyteShuffled(t *testing.T) {
	data := randomBytes(t, 1048576)
	packets := encode(t, 2048, data)
	if len(packets) != 519 {
		t.Fatalf("got %d packets, want 519", len(packets))
	}

	rng := rand.New(rand.NewPCG(7, 7))
	rng.Shuffle(len(packets), func(i, j int) { packets[i], packets[j] = packets[j], packets[i] })

	d, rec := newDecoder(t, Config{})
	acceptAll(t, d, packets)

	_, msgs, _ := rec.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if !bytes.Equal(msgs[0].Data, data) {
		t.Error("reassembled megabyte differs from write")
	}
	if msgs[0].Packets != 519 {
		t.Errorf("Packets = %d, want 519", msgs[0].Packets)
	}
}

func TestDecoder_TwoZeroOneScenario(t *testing.T) {
	packets := encode(t, 27, []byte("abcdefghi")) // 3-byte payloads
	if len(packets) != 3 {
		t.Fatalf("got %d packets, want 3", len(packets))
	}
	d, rec := newDecoder(t, Config{})

	for step, i := range []int{2, 0, 1} {
		if err := d.Accept(packets[i]); err != nil {
			t.Fatalf("Accept(%d) failed: %v", i, err)
		}
		if got := rec.count(types.EventData); step < 2 && got != 0 {
			t.Fatalf("data emitted after %d packets", step+1)
		}
	}

	events, msgs, _ := rec.snapshot()
	want := []types.EventKind{types.EventActive, types.EventData, types.EventIdle}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
	if string(msgs[0].Data) != "abcdefghi" {
		t.Errorf("Data = %q, want %q", msgs[0].Data, "abcdefghi")
	}
}

func TestDecoder_Duplicates(t *testing.T) {
	data := randomBytes(t, 5000)
	packets := encode(t, 1024, data)
	d, rec := newDecoder(t, Config{})

	// Every packet but the last twice, plus three extra copies of packet 0.
	var feed []*types.Packet
	for _, p := range packets[:len(packets)-1] {
		feed = append(feed, p, p)
	}
	feed = append(feed, packets[0], packets[0], packets[0], packets[len(packets)-1])
	acceptAll(t, d, feed)

	wantRedundant := len(packets) - 1 + 3
	if got := rec.count(types.EventRedundantChunk); got != wantRedundant {
		t.Errorf("redundant notifications = %d, want %d", got, wantRedundant)
	}
	_, msgs, _ := rec.snapshot()
	if len(msgs) != 1 || !bytes.Equal(msgs[0].Data, data) {
		t.Fatalf("got %d messages, want one equal to the write", len(msgs))
	}
	if msgs[0].Redundant != int64(wantRedundant) {
		t.Errorf("Message.Redundant = %d, want %d", msgs[0].Redundant, wantRedundant)
	}
}

func TestDecoder_LateDuplicateAfterCompletion(t *testing.T) {
	packets := encode(t, 27, []byte("abcdef"))
	d, rec := newDecoder(t, Config{})
	acceptAll(t, d, packets)

	if err := d.Accept(packets[0]); err != nil {
		t.Fatalf("late duplicate Accept failed: %v", err)
	}

	events, msgs, _ := rec.snapshot()
	want := []types.EventKind{types.EventActive, types.EventData, types.EventIdle, types.EventRedundantChunk}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
	if len(msgs) != 1 {
		t.Errorf("got %d messages, want 1", len(msgs))
	}
	if d.IsActive() {
		t.Error("late duplicate must not reopen the message")
	}
}

func TestDecoder_RetiredIdsExpire(t *testing.T) {
	packets := encode(t, 27, []byte("abc"))
	d, rec := newDecoder(t, Config{Timeout: time.Second})

	clock := time.Unix(1000, 0)
	d.now = func() time.Time { return clock }
	acceptAll(t, d, packets)

	// Past the retention window the id is unknown again and starts fresh.
	clock = clock.Add(2 * time.Second)
	acceptAll(t, d, packets)

	if got := rec.count(types.EventData); got != 2 {
		t.Errorf("data notifications = %d, want 2", got)
	}
	if got := rec.count(types.EventRedundantChunk); got != 0 {
		t.Errorf("redundant notifications = %d, want 0", got)
	}
}

func TestDecoder_InterleavedMessages(t *testing.T) {
	a := encode(t, 26, []byte("aaaa"))
	b := encode(t, 26, []byte("bbbb"))
	d, rec := newDecoder(t, Config{})

	for i := range a {
		acceptAll(t, d, []*types.Packet{b[len(b)-1-i], a[i]})
	}

	events, msgs, _ := rec.snapshot()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if rec.count(types.EventActive) != 1 || rec.count(types.EventIdle) != 1 {
		t.Errorf("events = %v, want one active and one idle", events)
	}
	for _, m := range msgs {
		if string(m.Data) != "aaaa" && string(m.Data) != "bbbb" {
			t.Errorf("unexpected message %q", m.Data)
		}
	}
}

func TestDecoder_EmptyWrite(t *testing.T) {
	packets := encode(t, 25, nil)
	d, rec := newDecoder(t, Config{})
	acceptAll(t, d, packets)

	_, msgs, _ := rec.snapshot()
	if len(msgs) != 1 || len(msgs[0].Data) != 0 {
		t.Fatalf("want one empty message, got %d", len(msgs))
	}
}

func TestDecoder_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		packets []*types.Packet
	}{
		{"nil packet", []*types.Packet{nil}},
		{"zero count", []*types.Packet{{MessageID: 1, Index: 0, Count: 0}}},
		{"index past count", []*types.Packet{{MessageID: 1, Index: 3, Count: 3}}},
		{"count changes", []*types.Packet{
			{MessageID: 1, Index: 0, Count: 3},
			{MessageID: 1, Index: 1, Count: 4},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, rec := newDecoder(t, Config{})
			var err error
			for _, p := range tt.packets {
				if err = d.Accept(p); err != nil {
					break
				}
			}

			var malformed *MalformedPacketError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected *MalformedPacketError, got %v", err)
			}
			if !IsProtocolError(err) {
				t.Error("IsProtocolError = false, want true")
			}
			if !errors.Is(d.Err(), err) {
				t.Errorf("Err() = %v, want %v", d.Err(), err)
			}
			if rec.count(types.EventError) != 1 {
				t.Errorf("error notifications = %d, want 1", rec.count(types.EventError))
			}

			// Failed decoders refuse further input with the terminal error.
			next := &types.Packet{MessageID: 99, Index: 0, Count: 1}
			if err2 := d.Accept(next); !errors.Is(err2, err) {
				t.Errorf("Accept after failure = %v, want %v", err2, err)
			}
			if rec.count(types.EventData) != 0 {
				t.Error("data emitted by failed decoder")
			}
		})
	}
}

func TestDecoder_MessageTooLarge(t *testing.T) {
	packets := encode(t, 124, randomBytes(t, 1000)) // 100-byte payloads
	d, rec := newDecoder(t, Config{MaxMessageSize: 250})

	var err error
	for _, p := range packets {
		if err = d.Accept(p); err != nil {
			break
		}
	}

	var tooLarge *MessageTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected *MessageTooLargeError, got %v", err)
	}
	if tooLarge.Size != 300 || tooLarge.Limit != 250 {
		t.Errorf("Size/Limit = %d/%d, want 300/250", tooLarge.Size, tooLarge.Limit)
	}
	if rec.count(types.EventError) != 1 {
		t.Errorf("error notifications = %d, want 1", rec.count(types.EventError))
	}
}

func TestDecoder_Timeout(t *testing.T) {
	packets := encode(t, 26, []byte("abcd"))
	d, rec := newDecoder(t, Config{Timeout: 30 * time.Millisecond})

	if err := d.Accept(packets[0]); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	err := d.WaitUntilIdle(t.Context())
	var timeout *ChunkTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("WaitUntilIdle = %v, want *ChunkTimeoutError", err)
	}
	if timeout.MessageID != packets[0].MessageID || timeout.Received != 1 || timeout.Expected != 2 {
		t.Errorf("timeout = %+v, want message %d with 1 of 2", timeout, packets[0].MessageID)
	}
	if timeout.Timeout != 30*time.Millisecond {
		t.Errorf("Timeout = %v, want 30ms", timeout.Timeout)
	}

	if err := d.Accept(packets[1]); !errors.As(err, &timeout) {
		t.Errorf("Accept after timeout = %v, want the timeout error", err)
	}

	events, _, errs := rec.snapshot()
	want := []types.EventKind{types.EventActive, types.EventError}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
	if len(errs) != 1 {
		t.Errorf("got %d errors, want exactly 1", len(errs))
	}
	if d.IsActive() {
		t.Error("failed decoder reports active")
	}
}

func TestDecoder_PacketZeroThenEnd(t *testing.T) {
	packets := encode(t, 26, []byte("abcd"))
	d, rec := newDecoder(t, Config{})

	if err := d.Accept(packets[0]); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	err := d.End()

	var incomplete *ChunkIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("End() = %v, want *ChunkIncompleteError", err)
	}
	if !slices.Equal(incomplete.MessageIDs, []uint64{packets[0].MessageID}) {
		t.Errorf("MessageIDs = %v, want [%d]", incomplete.MessageIDs, packets[0].MessageID)
	}
	if rec.count(types.EventData) != 0 {
		t.Error("partial message was emitted")
	}
	if rec.count(types.EventError) != 1 {
		t.Errorf("error notifications = %d, want 1", rec.count(types.EventError))
	}
	if err2 := d.End(); !errors.Is(err2, err) {
		t.Errorf("second End() = %v, want %v", err2, err)
	}
}

func TestDecoder_EndWhenIdle(t *testing.T) {
	d, rec := newDecoder(t, Config{})
	acceptAll(t, d, encode(t, 64, []byte("hello")))

	if err := d.End(); err != nil {
		t.Fatalf("End() = %v, want nil", err)
	}
	if err := d.End(); err != nil {
		t.Errorf("second End() = %v, want nil", err)
	}
	if err := d.Accept(&types.Packet{MessageID: 1, Count: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Accept after End = %v, want ErrClosed", err)
	}
	if d.Err() != nil {
		t.Errorf("Err() = %v, want nil", d.Err())
	}
	if rec.count(types.EventError) != 0 {
		t.Error("normal end reported an error")
	}
}

func TestDecoder_DestroyCancelsTimers(t *testing.T) {
	packets := encode(t, 26, []byte("abcd"))
	d, rec := newDecoder(t, Config{Timeout: 20 * time.Millisecond})

	if err := d.Accept(packets[0]); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	d.Destroy(nil)
	time.Sleep(80 * time.Millisecond)

	if rec.count(types.EventError) != 0 {
		t.Error("timer fired after Destroy")
	}
	if d.Err() != nil {
		t.Errorf("Err() = %v, want nil", d.Err())
	}
	if d.Live() != 0 {
		t.Errorf("Live() = %d, want 0", d.Live())
	}
	if err := d.Accept(packets[1]); !errors.Is(err, ErrClosed) {
		t.Errorf("Accept after Destroy = %v, want ErrClosed", err)
	}
}

func TestDecoder_DestroyWithError(t *testing.T) {
	upstream := errors.New("upstream broke")
	packets := encode(t, 26, []byte("abcd"))
	d, rec := newDecoder(t, Config{})

	if err := d.Accept(packets[0]); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	d.Destroy(upstream)
	d.Destroy(errors.New("second"))

	_, _, errs := rec.snapshot()
	if len(errs) != 1 || !errors.Is(errs[0], upstream) {
		t.Errorf("errors = %v, want [%v]", errs, upstream)
	}
	if !errors.Is(d.Err(), upstream) {
		t.Errorf("Err() = %v, want %v", d.Err(), upstream)
	}
	if err := d.WaitUntilIdle(t.Context()); !errors.Is(err, upstream) {
		t.Errorf("WaitUntilIdle = %v, want %v", err, upstream)
	}
}

func TestDecoder_Done(t *testing.T) {
	packets := encode(t, 26, []byte("abcd"))
	isDone := func(d *Decoder) bool {
		select {
		case <-d.Done():
			return true
		default:
			return false
		}
	}

	tests := []struct {
		name    string
		finish  func(t *testing.T, d *Decoder)
		wantErr bool
	}{
		{
			name:   "end when idle",
			finish: func(t *testing.T, d *Decoder) { _ = d.End() },
		},
		{
			name: "end with incomplete message",
			finish: func(t *testing.T, d *Decoder) {
				if err := d.Accept(packets[0]); err != nil {
					t.Fatalf("Accept failed: %v", err)
				}
				_ = d.End()
			},
			wantErr: true,
		},
		{
			name:   "destroy",
			finish: func(t *testing.T, d *Decoder) { d.Destroy(nil) },
		},
		{
			name:    "destroy with error",
			finish:  func(t *testing.T, d *Decoder) { d.Destroy(errors.New("gone")) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newDecoder(t, Config{})
			if isDone(d) {
				t.Fatal("Done closed before the decoder finished")
			}
			tt.finish(t, d)
			if !isDone(d) {
				t.Fatal("Done not closed after the decoder finished")
			}
			if (d.Err() != nil) != tt.wantErr {
				t.Errorf("Err() = %v, wantErr %v", d.Err(), tt.wantErr)
			}
			d.Destroy(nil)
		})
	}

	t.Run("timeout", func(t *testing.T) {
		d, _ := newDecoder(t, Config{Timeout: 20 * time.Millisecond})
		if err := d.Accept(packets[0]); err != nil {
			t.Fatalf("Accept failed: %v", err)
		}
		select {
		case <-d.Done():
		case <-time.After(time.Second):
			t.Fatal("Done not closed after the message timed out")
		}
		var timeoutErr *ChunkTimeoutError
		if !errors.As(d.Err(), &timeoutErr) {
			t.Errorf("Err() = %v, want *ChunkTimeoutError", d.Err())
		}
	})
}

func TestDecoder_DestroyDropsQueuedNotifications(t *testing.T) {
	packets := encode(t, 27, []byte("abc"))
	var d *Decoder
	rec := &recorder{}
	listener := Listeners{
		ListenerFuncs{Active: func() { d.Destroy(nil) }},
		rec,
	}
	d, _ = newDecoder(t, Config{Listener: listener})

	// The single packet completes the message: active, data, idle are
	// queued. Destroy from OnActive drops data and idle.
	acceptAll(t, d, packets)

	events, _, _ := rec.snapshot()
	if !slices.Equal(events, []types.EventKind{types.EventActive}) {
		t.Errorf("events = %v, want [active]", events)
	}
}

func TestDecoder_ReentrantEndFromIdle(t *testing.T) {
	packets := encode(t, 64, []byte("payload"))
	var d *Decoder
	endErr := make(chan error, 1)
	rec := &recorder{}
	listener := Listeners{
		rec,
		ListenerFuncs{Idle: func() { endErr <- d.End() }},
	}
	d, _ = newDecoder(t, Config{Listener: listener})

	acceptAll(t, d, packets)

	select {
	case err := <-endErr:
		if err != nil {
			t.Errorf("End() from OnIdle = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("End() from OnIdle deadlocked")
	}
	if err := d.Accept(packets[0]); !errors.Is(err, ErrClosed) {
		t.Errorf("Accept after End = %v, want ErrClosed", err)
	}
}

func TestDecoder_Metrics(t *testing.T) {
	c := metrics.NewCollector("strict", "", "s1")
	d, _ := newDecoder(t, Config{Collector: c})

	a := encode(t, 27, []byte("abcdef"))
	acceptAll(t, d, []*types.Packet{a[0], a[0], a[1]})
	b := encode(t, 27, []byte("xyz123"))
	acceptAll(t, d, b[:1])
	_ = d.End()

	s := c.Snapshot()
	if s.PacketsAccepted != 4 {
		t.Errorf("PacketsAccepted = %d, want 4", s.PacketsAccepted)
	}
	if s.RedundantChunks != 1 {
		t.Errorf("RedundantChunks = %d, want 1", s.RedundantChunks)
	}
	if s.MessagesStarted != 2 || s.MessagesCompleted != 1 || s.MessagesFailed != 1 {
		t.Errorf("started/completed/failed = %d/%d/%d, want 2/1/1",
			s.MessagesStarted, s.MessagesCompleted, s.MessagesFailed)
	}
	if s.BytesReassembled != 6 {
		t.Errorf("BytesReassembled = %d, want 6", s.BytesReassembled)
	}
	if s.Incompletes != 1 {
		t.Errorf("Incompletes = %d, want 1", s.Incompletes)
	}
}
