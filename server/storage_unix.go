//go:build unix

package server

import "syscall"

const oNoFollow = syscall.O_NOFOLLOW
