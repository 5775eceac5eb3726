package main

import (
	"fmt"

	"github.com/feizhen/virtual-try-on/internal/version"
)

// printVersion 输出注入的版本、提交与运行时信息。
func printVersion() {
	fmt.Fprintln(stdOut, version.Detailed())
}
