//go:build !unix

package cgi

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
