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
	"fmt"
	"net/http"
	"net/url"
)

func groupCreateCommand() *command {
	cmd := newCommand("group-create")
	cmd.Description = func() string { return "create a group" }
	cmd.Usage = func() string { return "Usage: group-create <name>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		res, err := apiCall(http.MethodPost, adminPrefix+"/groups", map[string]string{
			"group_name": cmd.Args()[0],
		})
		if err != nil {
			return err
		}
		return printBody(res, "group")
	}
	return cmd
}

func groupListCommand() *command {
	cmd := newCommand("group-list")
	cmd.Description = func() string { return "list all groups" }
	cmd.Action = func() error {
		res, err := apiCall(http.MethodGet, adminPrefix+"/groups", nil)
		if err != nil {
			return err
		}
		for _, g := range listField(res, "groups") {
			fmt.Printf("%d\t%s\n", num(g, "id"), str(g, "group_name"))
		}
		return nil
	}
	return cmd
}

func groupInfoCommand() *command {
	cmd := newCommand("group-info")
	cmd.Description = func() string { return "show one group" }
	cmd.Usage = func() string { return "Usage: group-info <name>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		res, err := apiCall(http.MethodGet, adminPrefix+"/groups/"+url.PathEscape(cmd.Args()[0]), nil)
		if err != nil {
			return err
		}
		return printBody(res, "group")
	}
	return cmd
}

func groupDeleteCommand() *command {
	cmd := newCommand("group-delete")
	cmd.Description = func() string { return "remove a group" }
	cmd.Usage = func() string { return "Usage: group-delete <name>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		if _, err := apiCall(http.MethodDelete, adminPrefix+"/groups/"+url.PathEscape(cmd.Args()[0]), nil); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}

func groupMembersCommand() *command {
	cmd := newCommand("group-members")
	cmd.Description = func() string { return "list the members of a group" }
	cmd.Usage = func() string { return "Usage: group-members <name>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		res, err := apiCall(http.MethodGet, adminPrefix+"/groups/"+url.PathEscape(cmd.Args()[0])+"/members", nil)
		if err != nil {
			return err
		}
		for _, u := range listField(res, "users") {
			fmt.Printf("%d\t%s\n", num(u, "id"), str(u, "user_name"))
		}
		return nil
	}
	return cmd
}
