//go:build !unix

package server

const oNoFollow = 0
