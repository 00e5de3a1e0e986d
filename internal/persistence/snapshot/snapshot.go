package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"lockstep.rts/internal/sim/world"
)

const Version = 1

// Header is written as the first (JSON) line of a snapshot file so tools
// can inspect a snapshot without decoding the state.
type Header struct {
	Version         int    `json:"version"`
	MatchID         string `json:"match_id"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`
	UnitsDigest     string `json:"units_digest,omitempty"`
	BuildingsDigest string `json:"buildings_digest,omitempty"`
	TuningDigest    string `json:"tuning_digest,omitempty"`
}

type SnapshotV1 struct {
	Header Header
	State  *world.State
}

// New captures s. The digest is computed here so readers can verify the body.
func New(matchID string, s *world.State) SnapshotV1 {
	return SnapshotV1{
		Header: Header{Version: Version, MatchID: matchID, Tick: s.Tick, Digest: world.Digest(s)},
		State:  s,
	}
}

// FileName is the conventional name of the snapshot for tick.
func FileName(tick uint64) string { return fmt.Sprintf("%d.snap.zst", tick) }

// WriteSnapshot writes header line + msgpack state, zstd compressed. The file
// is written to a temp name and renamed into place.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if snap.State == nil {
		return fmt.Errorf("snapshot: nil state")
	}
	body, err := world.Encode(snap.State)
	if err != nil {
		return fmt.Errorf("msgpack encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap.Header, body); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, h Header, body []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(h)
	_, err = bw.Write(append(hb, '\n'))
	if err == nil {
		_, err = bw.Write(body)
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return f.Sync()
}

// ReadSnapshot decodes a snapshot and checks the state against the header digest.
func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	h, br, closeFn, err := open(path)
	if err != nil {
		return snap, err
	}
	defer closeFn()

	body, err := io.ReadAll(br)
	if err != nil {
		return snap, err
	}
	st, err := world.Decode(body)
	if err != nil {
		return snap, fmt.Errorf("msgpack decode: %w", err)
	}
	if h.Digest == "" {
		return snap, fmt.Errorf("snapshot %s: header has no digest", filepath.Base(path))
	}
	if got := world.Digest(st); got != h.Digest {
		return snap, fmt.Errorf("snapshot %s: digest mismatch: header %s, state %s", filepath.Base(path), h.Digest, got)
	}
	snap.Header = h
	snap.State = st
	return snap, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	h, _, closeFn, err := open(path)
	if err != nil {
		return h, err
	}
	closeFn()
	return h, nil
}

func open(path string) (Header, *bufio.Reader, func(), error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return h, nil, nil, err
	}
	closeFn := func() {
		dec.Close()
		_ = f.Close()
	}
	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		closeFn()
		return h, nil, nil, fmt.Errorf("snapshot header: %w", err)
	}
	if err := json.Unmarshal(bytes.TrimSpace(line), &h); err != nil {
		closeFn()
		return h, nil, nil, fmt.Errorf("snapshot header: %w", err)
	}
	if h.Version != Version {
		closeFn()
		return h, nil, nil, fmt.Errorf("snapshot header: unsupported version %d", h.Version)
	}
	return h, br, closeFn, nil
}

// Latest returns the path of the highest-tick snapshot in dir, or "" when
// there is none.
func Latest(dir string) (string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	type cand struct {
		tick uint64
		path string
	}
	var cands []cand
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		cands = append(cands, cand{tick: tick, path: filepath.Join(dir, name)})
	}
	if len(cands) == 0 {
		return "", nil
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].tick < cands[j].tick })
	return cands[len(cands)-1].path, nil
}
