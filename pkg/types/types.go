package types

// WindowSize is the deflate sliding-window size: the number of preceding
// uncompressed bytes a checkpoint must carry so back-references resolve.
const WindowSize = 32768

// LogRecord represents one parsed unit of a log, possibly spanning several
// physical lines
type LogRecord struct {
	Timestamp uint64   // seconds since epoch, 0 when unparseable
	SessionID string   // optional correlation id extracted by the parser
	Offset    uint64   // start offset in the logical (uncompressed) stream
	Lines     [][]byte // raw lines, in order, newline included
	Err       error    // *ParseError when Timestamp could not be extracted
}

// FirstLine returns the first raw line of the record, or nil
func (r *LogRecord) FirstLine() []byte {
	if len(r.Lines) == 0 {
		return nil
	}
	return r.Lines[0]
}

// Checkpoint is a saved decompression resume point inside a deflate stream.
//
// CompressedOffset is the file offset of the byte holding the next unread
// bit. BitOffset is the number of high bits of that byte that are still
// unread; zero means the stream resumes byte-aligned at CompressedOffset.
// Window is right-aligned: the bytes immediately preceding the checkpoint
// occupy the end of the array.
type Checkpoint struct {
	UncompressedOffset uint64
	CompressedOffset   uint64
	BitOffset          uint8
	Window             [WindowSize]byte
}

// Dictionary returns the valid tail of the window
func (c *Checkpoint) Dictionary() []byte {
	n := c.UncompressedOffset
	if n > WindowSize {
		n = WindowSize
	}
	return c.Window[WindowSize-int(n):]
}

// SetWindow copies the last WindowSize bytes of hist into the window
func (c *Checkpoint) SetWindow(hist []byte) {
	if len(hist) > WindowSize {
		hist = hist[len(hist)-WindowSize:]
	}
	c.Window = [WindowSize]byte{}
	copy(c.Window[WindowSize-len(hist):], hist)
}

// TimeIndexEntry maps a bucketed timestamp to a logical byte offset
type TimeIndexEntry struct {
	Timestamp uint64 `json:"timestamp"`
	Offset    uint64 `json:"offset"`
}

// SourceKind tells how a log file is stored on disk
type SourceKind string

const (
	SourcePlain SourceKind = "plain"
	SourceGzip  SourceKind = "gzip"
)
