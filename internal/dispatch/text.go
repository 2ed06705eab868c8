/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/tonelist/internal/models"
)

const maxTitleWidth = 40

// FormatDuration renders d as m:ss or h:mm:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// EnqueuedText summarizes what an enqueue added.
func EnqueuedText(added []models.Track) string {
	switch len(added) {
	case 0:
		return "Nothing enqueued"
	case 1:
		return "Enqueued " + added[0].Title
	default:
		return fmt.Sprintf("Enqueued %d tracks", len(added))
	}
}

// QueueText renders the queue as a plain-text table in a code block.
func QueueText(q *models.Queue) string {
	if q.Len() == 0 {
		return "The queue is empty"
	}
	rows := [][]string{{"Index", "Title", "Duration"}}
	for i, t := range q.Tracks {
		length := "LIVE"
		if !t.IsStream {
			length = FormatDuration(t.Duration())
		}
		rows = append(rows, []string{strconv.Itoa(i), truncate(t.Title, maxTitleWidth), length})
	}
	return "```\n" + Table(rows) + "\n```"
}

// Table pads rows into columns. The first row is a header and the first
// column is right aligned.
func Table(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	var widths []int
	for _, row := range rows {
		for i, col := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], len([]rune(col)))
		}
	}

	lines := make([]string, 0, len(rows)+1)
	for r, row := range rows {
		cols := make([]string, len(row))
		for i, col := range row {
			pad := strings.Repeat(" ", widths[i]-len([]rune(col)))
			if i == 0 {
				cols[i] = pad + col
			} else {
				cols[i] = col + pad
			}
		}
		lines = append(lines, "| "+strings.Join(cols, " | ")+" |")
		if r == 0 {
			divider := make([]string, len(widths))
			for i, w := range widths {
				divider[i] = strings.Repeat("=", w)
			}
			lines = append(lines, "| "+strings.Join(divider, " | ")+" |")
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
