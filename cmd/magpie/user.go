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

func userCreateCommand() *command {
	cmd := newCommand("user-create")
	cmd.Description = func() string { return "create a user" }
	cmd.Usage = func() string { return "Usage: user-create [-email <email>] [-group <group>] <name>" }
	email := cmd.String("email", "", "email address")
	group := cmd.String("group", "", "extra group the user joins")
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}

		fmt.Print("password: ")
		password, err := readPassword(0)
		if err != nil {
			return err
		}

		res, err := apiCall(http.MethodPost, adminPrefix+"/users", map[string]string{
			"user_name":  cmd.Args()[0],
			"email":      *email,
			"password":   password,
			"group_name": *group,
		})
		if err != nil {
			return err
		}
		return printBody(res, "user")
	}
	return cmd
}

func userListCommand() *command {
	cmd := newCommand("user-list")
	cmd.Description = func() string { return "list all users" }
	cmd.Action = func() error {
		res, err := apiCall(http.MethodGet, adminPrefix+"/users", nil)
		if err != nil {
			return err
		}
		for _, u := range listField(res, "users") {
			fmt.Printf("%d\t%s\t%s\n", num(u, "id"), str(u, "user_name"), str(u, "email"))
		}
		return nil
	}
	return cmd
}

func userInfoCommand() *command {
	cmd := newCommand("user-info")
	cmd.Description = func() string { return "show one user" }
	cmd.Usage = func() string { return "Usage: user-info <name>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		res, err := apiCall(http.MethodGet, adminPrefix+"/users/"+url.PathEscape(cmd.Args()[0]), nil)
		if err != nil {
			return err
		}
		return printBody(res, "user")
	}
	return cmd
}

func userDeleteCommand() *command {
	cmd := newCommand("user-delete")
	cmd.Description = func() string { return "remove a user" }
	cmd.Usage = func() string { return "Usage: user-delete [-force] <name>" }
	force := cmd.Bool("force", false, "release owned resources instead of refusing")
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		p := adminPrefix + "/users/" + url.PathEscape(cmd.Args()[0])
		if *force {
			p += "?force=true"
		}
		if _, err := apiCall(http.MethodDelete, p, nil); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}

func userGroupsCommand() *command {
	cmd := newCommand("user-groups")
	cmd.Description = func() string { return "list the groups a user belongs to" }
	cmd.Usage = func() string { return "Usage: user-groups <name>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		res, err := apiCall(http.MethodGet, adminPrefix+"/users/"+url.PathEscape(cmd.Args()[0])+"/groups", nil)
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

func memberAddCommand() *command {
	cmd := newCommand("member-add")
	cmd.Description = func() string { return "add a user to a group" }
	cmd.Usage = func() string { return "Usage: member-add <user> <group>" }
	cmd.Action = func() error {
		if cmd.NArg() < 2 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		_, err := apiCall(http.MethodPost, adminPrefix+"/users/"+url.PathEscape(cmd.Args()[0])+"/groups", map[string]string{
			"group_name": cmd.Args()[1],
		})
		if err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}

func memberRemoveCommand() *command {
	cmd := newCommand("member-remove")
	cmd.Description = func() string { return "remove a user from a group" }
	cmd.Usage = func() string { return "Usage: member-remove <user> <group>" }
	cmd.Action = func() error {
		if cmd.NArg() < 2 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		p := adminPrefix + "/users/" + url.PathEscape(cmd.Args()[0]) + "/groups/" + url.PathEscape(cmd.Args()[1])
		if _, err := apiCall(http.MethodDelete, p, nil); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}
