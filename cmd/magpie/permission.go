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

// principalPath returns the API path for the user or group the flags
// name. Exactly one of the two must be set.
func principalPath(user, group string) (string, error) {
	if (user == "") == (group == "") {
		return "", fmt.Errorf("give exactly one of -user and -group")
	}
	if user != "" {
		return adminPrefix + "/users/" + url.PathEscape(user), nil
	}
	return adminPrefix + "/groups/" + url.PathEscape(group), nil
}

func permissionSetCommand() *command {
	cmd := newCommand("permission-set")
	cmd.Description = func() string { return "grant or deny a permission on a resource" }
	cmd.Usage = func() string {
		return "Usage: permission-set (-user <name> | -group <name>) [-access allow|deny] [-scope match|recursive] <resource id> <permission>"
	}
	user := cmd.String("user", "", "user the entry applies to")
	group := cmd.String("group", "", "group the entry applies to")
	access := cmd.String("access", "allow", "allow or deny")
	scope := cmd.String("scope", "match", "match or recursive")
	cmd.Action = func() error {
		if cmd.NArg() < 2 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		base, err := principalPath(*user, *group)
		if err != nil {
			return err
		}
		id, err := resourceID(cmd.Args()[0])
		if err != nil {
			return err
		}
		res, err := apiCall(http.MethodPost, base+"/permissions", map[string]interface{}{
			"resource_id": id,
			"name":        cmd.Args()[1],
			"access":      *access,
			"scope":       *scope,
		})
		if err != nil {
			return err
		}
		return printBody(res, "permission")
	}
	return cmd
}

func permissionClearCommand() *command {
	cmd := newCommand("permission-clear")
	cmd.Description = func() string { return "remove a permission entry" }
	cmd.Usage = func() string {
		return "Usage: permission-clear (-user <name> | -group <name>) <resource id> <permission>"
	}
	user := cmd.String("user", "", "user the entry applies to")
	group := cmd.String("group", "", "group the entry applies to")
	cmd.Action = func() error {
		if cmd.NArg() < 2 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		base, err := principalPath(*user, *group)
		if err != nil {
			return err
		}
		id, err := resourceID(cmd.Args()[0])
		if err != nil {
			return err
		}
		p := fmt.Sprintf("%s/permissions?resource_id=%d&name=%s", base, id, url.QueryEscape(cmd.Args()[1]))
		if _, err := apiCall(http.MethodDelete, p, nil); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}

func permissionListCommand() *command {
	cmd := newCommand("permission-list")
	cmd.Description = func() string { return "list permission entries of a user, group or resource" }
	cmd.Usage = func() string {
		return "Usage: permission-list (-user <name> | -group <name> | -resource <id>)"
	}
	user := cmd.String("user", "", "list entries of this user")
	group := cmd.String("group", "", "list entries of this group")
	resID := cmd.Int64("resource", 0, "list entries on this resource")
	cmd.Action = func() error {
		var base string
		switch {
		case *resID != 0:
			base = fmt.Sprintf("%s/resources/%d", adminPrefix, *resID)
		default:
			b, err := principalPath(*user, *group)
			if err != nil {
				return err
			}
			base = b
		}
		res, err := apiCall(http.MethodGet, base+"/permissions", nil)
		if err != nil {
			return err
		}
		for _, e := range listField(res, "permissions") {
			principal := ""
			if id := num(e, "user_id"); id != 0 {
				principal = fmt.Sprintf("user:%d", id)
			} else {
				principal = fmt.Sprintf("group:%d", num(e, "group_id"))
			}
			fmt.Printf("%s\tresource:%d\t%s\t%s\t%s\n",
				principal, num(e, "resource_id"), str(e, "name"), str(e, "access"), str(e, "scope"))
		}
		return nil
	}
	return cmd
}
