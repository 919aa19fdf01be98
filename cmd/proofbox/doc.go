// Command proofbox is the CLI companion to proofboxd. It queues photos,
// inspects the upload queue, and drives daemon operations over the local
// HTTP API.
package main
