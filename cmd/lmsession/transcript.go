// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bureau-foundation/languagemodel/cmd/lmsession/cli"
	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/snapshot"
)

// markdown renders transcripts for HTML export. Raw HTML in turn text
// is omitted, since the text comes from users and models.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// writeTranscript writes saved's turns as plain text, one labeled
// block per turn.
func writeTranscript(w io.Writer, saved snapshot.Snapshot) error {
	var buffer bytes.Buffer
	for index, turn := range saved.Turns() {
		if index > 0 {
			buffer.WriteByte('\n')
		}
		fmt.Fprintf(&buffer, "%s:\n%s\n", cli.RoleLabel(string(turn.Role)), cli.SanitizeModelOutput(turn.Text))
	}
	_, err := w.Write(buffer.Bytes())
	return err
}

// writeTranscriptHTML renders saved as a standalone HTML document. Turn
// text is treated as Markdown.
func writeTranscriptHTML(w io.Writer, saved snapshot.Snapshot) error {
	var source strings.Builder
	for _, turn := range saved.Turns() {
		fmt.Fprintf(&source, "### %s\n\n%s\n\n", roleHeading(turn.Role), turn.Text)
	}

	var body bytes.Buffer
	if err := markdown.Convert([]byte(source.String()), &body); err != nil {
		return fmt.Errorf("rendering transcript: %w", err)
	}

	title := html.EscapeString("Session " + saved.ID)
	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
<h1>%s</h1>
<p>Saved %s. top_k %d, temperature %g.</p>
%s</body>
</html>
`, title, title, saved.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"),
		saved.Sampling.TopK, saved.Sampling.Temperature, body.String())
	return err
}

func roleHeading(role contextwindow.Role) string {
	switch role {
	case contextwindow.RoleSystem:
		return "System"
	case contextwindow.RoleUser:
		return "User"
	case contextwindow.RoleAssistant:
		return "Model"
	default:
		return string(role)
	}
}
