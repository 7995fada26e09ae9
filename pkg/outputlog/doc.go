// Package outputlog records a test run as a transcript: the daemon's raw
// output and the outcome of every check, multiplexed into one file with
// timestamps.
//
// # Format
//
// Each record is written as
//
//	stream timestamp length: content\n
//
//   - stream: matches [a-zA-Z0-9_./-]{1,64}. The outputcheck command uses
//     "daemon" for everything the daemon wrote and "check" for check results.
//   - timestamp: UTC, 2006-01-02T15:04:05.000000000Z.
//   - length: byte length of content.
//   - content: exactly length bytes, copied verbatim. It may contain newlines
//     and binary data.
//
// A separator newline always follows the content, so a record whose content
// ends in a newline is followed by an empty-looking line. Readers use length,
// never the separator, to find the end of the content.
//
// # Example
//
//	daemon 2025-01-07T12:00:00.000000000Z 12: TRT count 1
//
//	check 2025-01-07T12:00:00.004000000Z 33: ok check_line "TRT count 1" (4ms)
package outputlog
