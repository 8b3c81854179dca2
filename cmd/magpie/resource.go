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
	"strconv"
)

// resourceID parses a positional resource id argument.
func resourceID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid resource id %q", arg)
	}
	return id, nil
}

func resourceCreateCommand() *command {
	cmd := newCommand("resource-create")
	cmd.Description = func() string { return "add a resource under a parent" }
	cmd.Usage = func() string { return "Usage: resource-create <parent id> <name> <type>" }
	cmd.Action = func() error {
		if cmd.NArg() < 3 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		parent, err := resourceID(cmd.Args()[0])
		if err != nil {
			return err
		}
		res, err := apiCall(http.MethodPost, adminPrefix+"/resources", map[string]interface{}{
			"parent_id":     parent,
			"resource_name": cmd.Args()[1],
			"resource_type": cmd.Args()[2],
		})
		if err != nil {
			return err
		}
		return printBody(res, "resource")
	}
	return cmd
}

func resourceInfoCommand() *command {
	cmd := newCommand("resource-info")
	cmd.Description = func() string { return "show one resource" }
	cmd.Usage = func() string { return "Usage: resource-info <id>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		id, err := resourceID(cmd.Args()[0])
		if err != nil {
			return err
		}
		res, err := apiCall(http.MethodGet, fmt.Sprintf("%s/resources/%d", adminPrefix, id), nil)
		if err != nil {
			return err
		}
		return printBody(res, "resource")
	}
	return cmd
}

func resourceUpdateCommand() *command {
	cmd := newCommand("resource-update")
	cmd.Description = func() string { return "rename or move a resource" }
	cmd.Usage = func() string { return "Usage: resource-update [-name <new name>] [-parent <new parent id>] <id>" }
	name := cmd.String("name", "", "new resource name")
	parent := cmd.Int64("parent", 0, "new parent resource id")
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		id, err := resourceID(cmd.Args()[0])
		if err != nil {
			return err
		}
		res, err := apiCall(http.MethodPatch, fmt.Sprintf("%s/resources/%d", adminPrefix, id), map[string]interface{}{
			"resource_name": *name,
			"parent_id":     *parent,
		})
		if err != nil {
			return err
		}
		return printBody(res, "resource")
	}
	return cmd
}

func resourceDeleteCommand() *command {
	cmd := newCommand("resource-delete")
	cmd.Description = func() string { return "remove a resource with its subtree" }
	cmd.Usage = func() string { return "Usage: resource-delete <id>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		id, err := resourceID(cmd.Args()[0])
		if err != nil {
			return err
		}
		if _, err := apiCall(http.MethodDelete, fmt.Sprintf("%s/resources/%d", adminPrefix, id), nil); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}

func resourceOwnerCommand() *command {
	cmd := newCommand("resource-owner")
	cmd.Description = func() string { return "assign or clear the owner of a resource" }
	cmd.Usage = func() string {
		return "Usage: resource-owner [-user-id <id>] [-group-id <id>] <id> (no flags clears the owner)"
	}
	userID := cmd.Int64("user-id", 0, "owning user id")
	groupID := cmd.Int64("group-id", 0, "owning group id")
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		id, err := resourceID(cmd.Args()[0])
		if err != nil {
			return err
		}
		_, err = apiCall(http.MethodPut, fmt.Sprintf("%s/resources/%d/owner", adminPrefix, id), map[string]interface{}{
			"owner_user_id":  *userID,
			"owner_group_id": *groupID,
		})
		if err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}
