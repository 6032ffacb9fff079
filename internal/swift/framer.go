package swift

import (
	"fmt"
	"regexp"
	"strings"
)

// FramingCause enumerates why framing a raw payload into blocks failed.
type FramingCause string

const (
	MissingBlock4      FramingCause = "MissingBlock4"
	UnterminatedBlock4 FramingCause = "UnterminatedBlock4"
	MalformedTagLine   FramingCause = "MalformedTagLine"
)

// FramingError is fatal for the message it was raised against.
type FramingError struct {
	Cause  FramingCause
	Detail string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("swift: framing error (%s): %s", e.Cause, e.Detail)
}

// BlockHeaders preserves block 1/2/3 verbatim for diagnostics; C2 decides
// what, if anything, it needs from them.
type BlockHeaders struct {
	Block1 string
	Block2 string
	Block3 string
}

// Tag is a single decoded (tag, value) triple from block 4. The option
// letter, when present, is the trailing uppercase letter of Tag itself
// (e.g. "50K", "59A") so callers can switch on the full string.
type Tag struct {
	Tag   string
	Value string
}

// Frame is the framer's output: block headers plus the ordered field
// triples extracted from block 4. Unknown tags are preserved in order;
// the decoder (C2) decides which apply to a given MT type.
type Frame struct {
	Headers     BlockHeaders
	MessageType string
	Fields      []Tag
}

var (
	block1Regex = regexp.MustCompile(`\{1:[^}]*\}`)
	block2Regex = regexp.MustCompile(`\{2:[^}]*\}`)
	block3Regex = regexp.MustCompile(`\{3:.*?\}\}`)
	msgTypeRegex = regexp.MustCompile(`\{2:[IO](\d{3})`)
	tagLineRegex = regexp.MustCompile(`^:([0-9]{2}[A-Z]?):(.*)$`)
)

// FrameMessage splits a raw SWIFT payload into its blocks and decodes
// block 4 into an ordered sequence of (tag, value) triples. Block 4's
// content spans from "{4:" up to its "-}" trailer; anything before or
// after is treated as header/trailer material only blocks 1-3 are
// inspected for diagnostics and message-type dispatch.
func FrameMessage(raw string) (*Frame, error) {
	start := strings.Index(raw, "{4:")
	if start < 0 {
		return nil, &FramingError{Cause: MissingBlock4, Detail: "no {4: block found"}
	}
	bodyStart := start + len("{4:")
	end := strings.Index(raw[bodyStart:], "-}")
	if end < 0 {
		return nil, &FramingError{Cause: UnterminatedBlock4, Detail: "no -} trailer found after {4:"}
	}
	body := raw[bodyStart : bodyStart+end]

	headers := BlockHeaders{}
	if m := block1Regex.FindString(raw[:start]); m != "" {
		headers.Block1 = m
	}
	if m := block2Regex.FindString(raw[:start]); m != "" {
		headers.Block2 = m
	}
	if m := block3Regex.FindString(raw[:start]); m != "" {
		headers.Block3 = m
	}

	messageType := ""
	if m := msgTypeRegex.FindStringSubmatch(headers.Block2); len(m) == 2 {
		messageType = m[1]
	}

	fields, err := extractFields(body)
	if err != nil {
		return nil, err
	}

	return &Frame{Headers: headers, MessageType: messageType, Fields: fields}, nil
}

// extractFields walks block 4 line by line. A field begins with ":TAG:" at
// line start; everything up to the next tag line (or end of block)
// belongs to its value, with internal newlines preserved.
func extractFields(body string) ([]Tag, error) {
	body = strings.TrimPrefix(body, "\n")
	lines := strings.Split(body, "\n")

	var fields []Tag
	var current *Tag
	var valueLines []string

	flush := func() {
		if current != nil {
			current.Value = strings.TrimRight(strings.Join(valueLines, "\n"), " \t")
			fields = append(fields, *current)
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(line, ":") {
			m := tagLineRegex.FindStringSubmatch(line)
			if m == nil {
				return nil, &FramingError{Cause: MalformedTagLine, Detail: fmt.Sprintf("unrecognised tag line: %q", line)}
			}
			flush()
			current = &Tag{Tag: m[1]}
			valueLines = []string{strings.TrimSpace(m[2])}
			continue
		}
		if current == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			return nil, &FramingError{Cause: MalformedTagLine, Detail: fmt.Sprintf("content before first tag: %q", line)}
		}
		valueLines = append(valueLines, line)
	}
	flush()

	return fields, nil
}
