// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch tails an append-only JSONL file while another process
// writes it. It is how "parley sessions watch" follows a live session.
//
// Change notification comes from fsnotify on the file's directory, so
// a file that does not exist yet is picked up when it is created. A
// ticker polls as well: some filesystems (network mounts, some
// container overlays) deliver no events, and polling costs one stat
// per interval. Only complete lines are delivered; a line still being
// written waits for its newline.
package watch
