// File: cmd/replay.go
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taintgrid/internal/observability"
	"github.com/xkilldash9x/taintgrid/internal/taint"
)

var replayFile string

// replayCmd replays a recorded instrumentation trace through a fresh
// tracking context and prints the evidence for every check record. Useful
// for inspecting propagation decisions offline.
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay an instrumentation trace and print taint evidence.",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := os.Stdin
		if replayFile != "" && replayFile != "-" {
			f, err := os.Open(replayFile)
			if err != nil {
				return fmt.Errorf("failed to open trace file: %w", err)
			}
			defer f.Close()
			in = f
		}
		return runReplay(appCfg.Engine().MaxRangesPerValue, appCfg.Engine().MaxTrackedValues,
			in, cmd.OutOrStdout(), observability.GetLogger())
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "-", "trace file (JSON lines; '-' for stdin)")
	rootCmd.AddCommand(replayCmd)
}

// traceRecord is one line of a replay trace. The op field selects which of
// the remaining fields are meaningful.
type traceRecord struct {
	Op     string      `json:"op"`
	ID     uint64      `json:"id"`
	Value  string      `json:"value,omitempty"`
	Name   string      `json:"name,omitempty"`
	Origin string      `json:"origin,omitempty"`
	Left   uint64      `json:"left,omitempty"`
	Right  uint64      `json:"right,omitempty"`
	From   uint64      `json:"from,omitempty"`
	Lo     int         `json:"lo,omitempty"`
	Hi     int         `json:"hi,omitempty"`
	Parts  []tracePart `json:"parts,omitempty"`
}

// tracePart is one fragment of a join record: either a reference to a
// previously defined value or an untainted literal.
type tracePart struct {
	From    *uint64 `json:"from,omitempty"`
	Literal string  `json:"literal,omitempty"`
}

// replaySession holds the values defined so far, keyed by trace id. The
// trace id doubles as the native identity handed to the tracker.
type replaySession struct {
	tracker *taint.Tracker
	values  map[uint64]string
	logger  *zap.Logger
}

// runReplay drives a whole trace through a fresh tracker, writing one
// evidence JSON document per check record.
func runReplay(maxRanges, maxTracked int, in io.Reader, out io.Writer, logger *zap.Logger) error {
	tracker := taint.NewTracker(logger)
	if err := tracker.Setup(taint.Limits{
		MaxRangesPerValue: maxRanges,
		MaxTrackedValues:  maxTracked,
	}); err != nil {
		return err
	}

	session := &replaySession{
		tracker: tracker,
		values:  make(map[uint64]string),
		logger:  logger.Named("replay"),
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec traceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("trace line %d: %w", lineNo, err)
		}
		if err := session.apply(rec, out); err != nil {
			return fmt.Errorf("trace line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}

	stats := tracker.Stats()
	session.logger.Debug("Replay finished.",
		zap.Int("lines", lineNo),
		zap.Int("tracked", tracker.Tracked()),
		zap.Uint64("truncated_ranges", stats.TruncatedRanges),
		zap.Uint64("stale_evictions", stats.StaleEvictions),
	)
	return nil
}

// apply executes a single trace record against the session.
func (s *replaySession) apply(rec traceRecord, out io.Writer) error {
	switch rec.Op {
	case "taint":
		s.values[rec.ID] = rec.Value
		source := taint.NewSource(rec.Name, taint.ParseOrigin(rec.Origin), rec.Value)
		_, _, err := s.tracker.Taint(taint.NativeID(rec.ID), rec.Value, source)
		return err

	case "concat":
		left, err := s.value(rec.Left)
		if err != nil {
			return err
		}
		right, err := s.value(rec.Right)
		if err != nil {
			return err
		}
		result := left + right
		ranges := taint.ConcatRanges(s.ranges(rec.Left, left), len(left), s.ranges(rec.Right, right))
		return s.define(rec.ID, result, ranges)

	case "slice":
		src, err := s.value(rec.From)
		if err != nil {
			return err
		}
		if rec.Lo < 0 || rec.Hi > len(src) || rec.Lo > rec.Hi {
			return fmt.Errorf("slice bounds [%d:%d) out of range for value of length %d", rec.Lo, rec.Hi, len(src))
		}
		result := src[rec.Lo:rec.Hi]
		ranges := taint.SliceRanges(s.ranges(rec.From, src), rec.Lo, rec.Hi)
		return s.define(rec.ID, result, ranges)

	case "join":
		var result string
		fragments := make([]taint.Fragment, 0, len(rec.Parts))
		for _, p := range rec.Parts {
			if p.From != nil {
				v, err := s.value(*p.From)
				if err != nil {
					return err
				}
				fragments = append(fragments, taint.Fragment{Ranges: s.ranges(*p.From, v), Length: len(v)})
				result += v
				continue
			}
			fragments = append(fragments, taint.Literal(len(p.Literal)))
			result += p.Literal
		}
		return s.define(rec.ID, result, taint.JoinRanges(fragments))

	case "forget":
		s.tracker.Forget(taint.NativeID(rec.ID))
		return nil

	case "check":
		v, err := s.value(rec.ID)
		if err != nil {
			return err
		}
		ranges, _ := s.tracker.Ranges(taint.NativeID(rec.ID), taint.ProbeString(v))
		evidence := taint.EvidenceFor(v, ranges)
		data, err := evidence.MarshalJSONBytes()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err

	default:
		return fmt.Errorf("unknown trace op %q", rec.Op)
	}
}

// define records a derived value and registers its computed ranges.
func (s *replaySession) define(id uint64, value string, ranges []taint.TaintRange) error {
	s.values[id] = value
	if len(ranges) == 0 {
		return nil
	}
	_, _, err := s.tracker.Register(taint.NativeID(id), taint.ProbeString(value), ranges)
	return err
}

// value resolves a trace id to its recorded value.
func (s *replaySession) value(id uint64) (string, error) {
	v, ok := s.values[id]
	if !ok {
		return "", fmt.Errorf("trace references undefined value id %d", id)
	}
	return v, nil
}

// ranges fetches the live range set for a trace id, or nil for untainted
// values.
func (s *replaySession) ranges(id uint64, value string) []taint.TaintRange {
	rs, _ := s.tracker.Ranges(taint.NativeID(id), taint.ProbeString(value))
	return rs
}
