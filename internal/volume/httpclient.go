package volume

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Result codes on the upstream wire. Anything not listed maps to a plain
// error and is treated as internal by the engine.
const (
	codeOK            = "OK"
	codeNotExist      = "NOT_EXIST"
	codeAuthFail      = "AUTH_FAIL"
	codeUnderSnapshot = "UNDER_SNAPSHOT"
	codeDeleting      = "DELETING"
	codeNotAllocated  = "NOT_ALLOCATED"
)

func codeToErr(code, message string) error {
	switch code {
	case codeOK:
		return nil
	case codeNotExist:
		return ErrNotExist
	case codeAuthFail:
		return ErrAuthFail
	case codeUnderSnapshot:
		return ErrUnderSnapshot
	case codeDeleting:
		return ErrDeleting
	case codeNotAllocated:
		return ErrNotAllocated
	default:
		return fmt.Errorf("volume: upstream code %s: %s", code, message)
	}
}

// HTTPClient talks JSON over HTTP to the upstream volume metadata service.
type HTTPClient struct {
	base string
	http *http.Client
}

// NewHTTPClient creates a client against the given base URL.
func NewHTTPClient(base string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		base: base,
		http: &http.Client{Timeout: timeout},
	}
}

type wireEnvelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type wireFInfo struct {
	FileName    string `json:"file_name"`
	Length      uint64 `json:"length"`
	ChunkSize   uint64 `json:"chunk_size"`
	SegmentSize uint64 `json:"segment_size"`
	SeqNum      uint64 `json:"seq_num"`
	CTimeUs     int64  `json:"ctime_us"`
	Status      int    `json:"status"`
}

func (w *wireFInfo) toFInfo() *FInfo {
	return &FInfo{
		FileName:    w.FileName,
		Length:      w.Length,
		ChunkSize:   w.ChunkSize,
		SegmentSize: w.SegmentSize,
		SeqNum:      w.SeqNum,
		CTime:       time.UnixMicro(w.CTimeUs),
		Status:      FileStatus(w.Status),
	}
}

func (c *HTTPClient) call(method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("volume: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, u, reqBody)
	if err != nil {
		return fmt.Errorf("volume: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("volume: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope wireEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("volume: decode response of %s %s: %w", method, path, err)
	}
	// Some coded results still carry a payload (UNDER_SNAPSHOT reports the
	// in-flight sequence), so the data is decoded before the code is mapped.
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("volume: decode payload of %s %s: %w", method, path, err)
		}
	}
	if err := codeToErr(envelope.Code, envelope.Message); err != nil {
		return err
	}
	if out != nil && len(envelope.Data) == 0 {
		return fmt.Errorf("volume: missing payload in response of %s %s", method, path)
	}
	return nil
}

func fileQuery(file, user string) url.Values {
	q := url.Values{}
	q.Set("file", file)
	q.Set("user", user)
	return q
}

// GetFileInfo fetches volume metadata.
func (c *HTTPClient) GetFileInfo(file, user string) (*FInfo, error) {
	var w wireFInfo
	if err := c.call(http.MethodGet, "/files", fileQuery(file, user), nil, &w); err != nil {
		return nil, err
	}
	return w.toFInfo(), nil
}

// CreateSnapshot registers an upstream snapshot. On ErrUnderSnapshot the
// returned sequence is the in-flight snapshot's.
func (c *HTTPClient) CreateSnapshot(file, user string) (uint64, error) {
	var out struct {
		SeqNum uint64 `json:"seq_num"`
	}
	err := c.call(http.MethodPost, "/snapshots", fileQuery(file, user), nil, &out)
	if err != nil && !errors.Is(err, ErrUnderSnapshot) {
		return 0, err
	}
	return out.SeqNum, err
}

// DeleteSnapshot releases the upstream snapshot handle.
func (c *HTTPClient) DeleteSnapshot(file, user string, seq uint64) error {
	q := fileQuery(file, user)
	q.Set("seq", strconv.FormatUint(seq, 10))
	return c.call(http.MethodDelete, "/snapshots", q, nil, nil)
}

// GetSnapshot fetches the metadata of one upstream snapshot.
func (c *HTTPClient) GetSnapshot(file, user string, seq uint64) (*FInfo, error) {
	q := fileQuery(file, user)
	q.Set("seq", strconv.FormatUint(seq, 10))
	var w wireFInfo
	if err := c.call(http.MethodGet, "/snapshots", q, nil, &w); err != nil {
		return nil, err
	}
	return w.toFInfo(), nil
}

// GetSnapshotSegmentInfo fetches the segment at the given offset.
func (c *HTTPClient) GetSnapshotSegmentInfo(file, user string, seq, offset uint64) (*SegmentInfo, error) {
	q := fileQuery(file, user)
	q.Set("seq", strconv.FormatUint(seq, 10))
	q.Set("offset", strconv.FormatUint(offset, 10))
	var out SegmentInfo
	if err := c.call(http.MethodGet, "/segments", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetChunkInfo fetches the write-sequence history of one chunk.
func (c *HTTPClient) GetChunkInfo(cid ChunkIDInfo) (*ChunkInfoDetail, error) {
	q := url.Values{}
	q.Set("pool", strconv.FormatUint(uint64(cid.LogicalPoolID), 10))
	q.Set("copyset", strconv.FormatUint(uint64(cid.CopysetID), 10))
	q.Set("chunk", strconv.FormatUint(cid.ChunkID, 10))
	var out ChunkInfoDetail
	if err := c.call(http.MethodGet, "/chunks", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadChunkSnapshot reads one piece of a chunk at the given sequence.
func (c *HTTPClient) ReadChunkSnapshot(cid ChunkIDInfo, seq, offset, length uint64) ([]byte, error) {
	q := url.Values{}
	q.Set("pool", strconv.FormatUint(uint64(cid.LogicalPoolID), 10))
	q.Set("copyset", strconv.FormatUint(uint64(cid.CopysetID), 10))
	q.Set("chunk", strconv.FormatUint(cid.ChunkID, 10))
	q.Set("seq", strconv.FormatUint(seq, 10))
	q.Set("offset", strconv.FormatUint(offset, 10))
	q.Set("length", strconv.FormatUint(length, 10))
	var out struct {
		Data string `json:"data"`
	}
	if err := c.call(http.MethodGet, "/chunks/read", q, nil, &out); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, fmt.Errorf("volume: decode chunk data: %w", err)
	}
	return data, nil
}

// CheckSnapShotStatus polls the state of an upstream snapshot being deleted.
func (c *HTTPClient) CheckSnapShotStatus(file, user string, seq uint64) (FileStatus, error) {
	q := fileQuery(file, user)
	q.Set("seq", strconv.FormatUint(seq, 10))
	var out struct {
		Status int `json:"status"`
	}
	if err := c.call(http.MethodGet, "/snapshots/status", q, nil, &out); err != nil {
		return 0, err
	}
	return FileStatus(out.Status), nil
}
