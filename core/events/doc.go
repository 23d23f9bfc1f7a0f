// Package events defines the typed event stream a conversational turn emits.
//
// Kinds, in the order they may appear within one turn:
//
//   - Start (start): the turn began; always the first event.
//   - Chunk (chunk): a streamed fragment of the assistant's answer text.
//   - ToolCallNotice (tool_call): the model requested tool execution; the
//     payload is a human-readable progress notice, not the call itself.
//   - Audio (audio): a synthesized speech segment became available; the
//     payload references the audio file.
//   - Error (error): the turn failed; carries a readable message. The stream
//     still terminates with End.
//   - End (end): the turn finished; always the last event, on success and
//     failure paths alike. May carry the final residual audio reference.
//
// Every turn emits exactly one Start first and exactly one End last,
// regardless of which path it took. Consumers must treat the sequence as
// append-only and stop processing after End.
package events
