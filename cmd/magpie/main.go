// Copyright 2018-2024 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

var (
	conf *config

	gitCommit, buildDate, version, goVersion string
)

func main() {
	flag.Parse()

	cmds := []*command{
		versionCommand(),
		configureCommand(),
		loginCommand(),
		logoutCommand(),
		whoamiCommand(),
		serviceCreateCommand(),
		serviceListCommand(),
		serviceInfoCommand(),
		serviceResourcesCommand(),
		serviceDeleteCommand(),
		resourceCreateCommand(),
		resourceInfoCommand(),
		resourceUpdateCommand(),
		resourceDeleteCommand(),
		resourceOwnerCommand(),
		userCreateCommand(),
		userListCommand(),
		userInfoCommand(),
		userDeleteCommand(),
		userGroupsCommand(),
		groupCreateCommand(),
		groupListCommand(),
		groupInfoCommand(),
		groupDeleteCommand(),
		groupMembersCommand(),
		memberAddCommand(),
		memberRemoveCommand(),
		permissionSetCommand(),
		permissionClearCommand(),
		permissionListCommand(),
		identityLinkCommand(),
		identityUnlinkCommand(),
		identityListCommand(),
	}

	mainUsage := createMainUsage(cmds)

	// Verify that a subcommand has been provided.
	if len(flag.Args()) < 1 {
		fmt.Println(mainUsage)
		os.Exit(1)
	}

	// Verify a configuration file exists, every command but configure
	// and version needs the host from it.
	action := flag.Args()[0]
	c, err := readConfig()
	if err != nil && action != "configure" && action != "version" {
		fmt.Println("magpie is not initialized, run \"magpie configure\"")
		os.Exit(1)
	}
	conf = c

	// Run command.
	for _, v := range cmds {
		if v.Name == action {
			if err := v.Parse(flag.Args()[1:]); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			if err := v.Action(); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			os.Exit(0)
		}
	}

	fmt.Println(mainUsage)
	os.Exit(1)
}

func createMainUsage(cmds []*command) string {
	n := 0
	for _, cmd := range cmds {
		l := len(cmd.Name)
		if l > n {
			n = l
		}
	}

	usage := "Command line interface to Magpie\n\n"
	for _, cmd := range cmds {
		usage += fmt.Sprintf("%s%s%s\n", cmd.Name, strings.Repeat(" ", 4+(n-len(cmd.Name))), cmd.Description())
	}
	return usage
}

func versionCommand() *command {
	cmd := newCommand("version")
	cmd.Description = func() string { return "print the version of this client" }
	cmd.Action = func() error {
		fmt.Printf("version=%s commit=%s go_version=%s build_date=%s\n", version, gitCommit, goVersion, buildDate)
		return nil
	}
	return cmd
}
