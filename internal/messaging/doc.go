// Package messaging connects the orchestrator to the channel bus on NATS.
//
// Inbound channel messages arrive as JSON jobs on a subject (default
// "channels.inbound") shared by a queue group, and are handed to a Handler on
// a bounded worker pool. Replies are published to "channels.outbound.<channel>"
// where channel gateways such as the WhatsApp bridge pick them up.
package messaging
