//go:build !autd_debug

package datagram

const debugBoxed = false
