// Package notify delivers outbound notifications (password-reset links)
// from a small worker pool so request handlers never wait on a mail
// provider.
//
// Enqueue never blocks. Delivery failures are logged and counted; they are
// never reported back to the request that produced the message.
package notify
