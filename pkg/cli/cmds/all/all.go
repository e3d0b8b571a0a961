// Package all registers the shell commands of every device class.
package all

import (
	// device commands
	_ "github.com/robotalks/rtdev.go/pkg/cli/cmds/eth"
	_ "github.com/robotalks/rtdev.go/pkg/cli/cmds/file"
	_ "github.com/robotalks/rtdev.go/pkg/cli/cmds/lcd"
	_ "github.com/robotalks/rtdev.go/pkg/cli/cmds/touch"
	_ "github.com/robotalks/rtdev.go/pkg/cli/cmds/uart"
)
