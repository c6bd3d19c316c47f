/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package protocol

import (
	"strconv"
	"strings"
)

// Command is one line of input split into its verb and raw arguments.
// There is no quoting or escaping: Args is everything after the first
// run of whitespace following the verb, up to the line terminator.
type Command struct {
	Verb string
	Args string
	Line string
}

const whitespace = " \t\r\n"

// ParseCommand splits the first line of input into a verb and its argument
// remainder. Anything after the first newline is ignored. Leading
// whitespace must already be stripped by the caller.
func ParseCommand(input string) Command {
	line, _, _ := strings.Cut(input, "\n")
	line = strings.TrimRight(line, whitespace)
	cmd := Command{Line: line}

	end := strings.IndexAny(line, whitespace)
	if end < 0 {
		cmd.Verb = line
		return cmd
	}

	cmd.Verb = line[:end]
	cmd.Args = strings.TrimLeft(line[end:], whitespace)
	return cmd
}

// ParseLenient parses the longest numeric prefix of s, ignoring leading
// whitespace. Input without a numeric prefix parses to zero.
func ParseLenient(s string) float64 {
	s = strings.TrimLeft(s, whitespace)

	end := 0
	for end < len(s) && strings.IndexByte("+-.0123456789eE", s[end]) >= 0 {
		end++
	}

	for ; end > 0; end-- {
		if v, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return v
		}
	}
	return 0
}
