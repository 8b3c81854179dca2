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

func identityLinkCommand() *command {
	cmd := newCommand("identity-link")
	cmd.Description = func() string { return "link an external identity to a user" }
	cmd.Usage = func() string {
		return "Usage: identity-link <user> <provider> <external id> [external name]"
	}
	cmd.Action = func() error {
		if cmd.NArg() < 3 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		externalName := ""
		if cmd.NArg() >= 4 {
			externalName = cmd.Args()[3]
		}
		_, err := apiCall(http.MethodPost, adminPrefix+"/users/"+url.PathEscape(cmd.Args()[0])+"/identities", map[string]string{
			"provider_name":      cmd.Args()[1],
			"external_id":        cmd.Args()[2],
			"external_user_name": externalName,
		})
		if err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}

func identityUnlinkCommand() *command {
	cmd := newCommand("identity-unlink")
	cmd.Description = func() string { return "unlink an external identity" }
	cmd.Usage = func() string { return "Usage: identity-unlink <user> <provider> <external id>" }
	cmd.Action = func() error {
		if cmd.NArg() < 3 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		p := fmt.Sprintf("%s/users/%s/identities?provider_name=%s&external_id=%s",
			adminPrefix, url.PathEscape(cmd.Args()[0]),
			url.QueryEscape(cmd.Args()[1]), url.QueryEscape(cmd.Args()[2]))
		if _, err := apiCall(http.MethodDelete, p, nil); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}

func identityListCommand() *command {
	cmd := newCommand("identity-list")
	cmd.Description = func() string { return "list the external identities of a user" }
	cmd.Usage = func() string { return "Usage: identity-list <user>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		res, err := apiCall(http.MethodGet, adminPrefix+"/users/"+url.PathEscape(cmd.Args()[0])+"/identities", nil)
		if err != nil {
			return err
		}
		for _, id := range listField(res, "identities") {
			fmt.Printf("%s\t%s\t%s\n", str(id, "provider_name"), str(id, "external_id"), str(id, "external_user_name"))
		}
		return nil
	}
	return cmd
}
