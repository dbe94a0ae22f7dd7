// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package languagemodel

import (
	"strings"

	"github.com/bureau-foundation/languagemodel/lib/executor"
)

// deltaReader turns executor chunks into response deltas and keeps the
// full response.
type deltaReader struct {
	mode     executor.StreamingMode
	response strings.Builder
}

// delta returns the text chunk adds to the response. In CurrentResponse
// mode a chunk that does not extend the response so far replaces it,
// and the whole chunk is returned.
func (reader *deltaReader) delta(chunk executor.Chunk) string {
	if reader.mode == executor.ChunkByChunk {
		reader.response.WriteString(chunk.Text)
		return chunk.Text
	}

	current := reader.response.String()
	if strings.HasPrefix(chunk.Text, current) {
		added := chunk.Text[len(current):]
		reader.response.WriteString(added)
		return added
	}
	reader.response.Reset()
	reader.response.WriteString(chunk.Text)
	return chunk.Text
}

func (reader *deltaReader) text() string { return reader.response.String() }
