// Package ws bridges the event bus to browser WebSocket clients.
//
// Every bus event is forwarded to each connection as an "event" frame.
// Clients publish with "emit" frames and may send "ping". Frames are JSON
// encoded with sonic.
//
// A connection that cannot keep up loses events rather than slowing the
// bus down; dropped frames are logged.
//
// Example frames:
//
//	{"type":"event","event":"app:activated","data":{...}}
//	{"type":"emit","event":"music:play"}
//	{"type":"emitted","event":"music:play","data":1}
package ws
