// Package msgsplit splits outgoing Telegram text into chunks that respect
// the chat platform's message-length limit without ever separating an
// escaped MarkdownV2 sequence's backslash from the character it escapes.
package msgsplit

import "errors"

// ErrInvalidChunkSize is returned when chunkSize is not positive.
var ErrInvalidChunkSize = errors.New("msgsplit: chunkSize must be > 0")

// Split divides text into ordered, non-empty chunks of at most chunkSize
// code points each, such that concatenating the chunks reproduces text
// exactly. Units are Unicode code points, not bytes or UTF-16 units (the
// choice is recorded in DESIGN.md under "Open Question decisions"). Empty
// text yields no chunks.
//
// A candidate chunk whose last code point is a lone trailing backslash (and
// that backslash is not the final code point of the whole input) is cut one
// position earlier instead, so the backslash stays attached to whatever
// follows it in the next chunk. If shortening the chunk this way would
// leave it empty, the cut is pushed to chunkSize+1 instead, guaranteeing
// forward progress.
func Split(text string, chunkSize int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}, nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		isLastChunk := end == len(runes)
		if !isLastChunk && end > start && runes[end-1] == '\\' {
			if end-1 > start {
				end--
			} else {
				end = start + chunkSize + 1
				if end > len(runes) {
					end = len(runes)
				}
			}
		}

		chunks = append(chunks, string(runes[start:end]))
		start = end
	}

	return chunks, nil
}
