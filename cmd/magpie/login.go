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
	"bufio"
	"fmt"
	"net/http"
	"os"
)

func loginCommand() *command {
	cmd := newCommand("login")
	cmd.Description = func() string { return "sign in and store the session token" }
	cmd.Usage = func() string { return "Usage: login [username] [password]" }
	cmd.Action = func() error {
		var username, password string
		if cmd.NArg() >= 2 {
			username = cmd.Args()[0]
			password = cmd.Args()[1]
		} else {
			reader := bufio.NewReader(os.Stdin)
			fmt.Print("username: ")
			usernameInput, err := read(reader)
			if err != nil {
				return err
			}

			fmt.Print("password: ")
			passwordInput, err := readPassword(0)
			if err != nil {
				return err
			}

			username = usernameInput
			password = passwordInput
		}

		res, err := apiCall(http.MethodPost, authPrefix+"/signin", map[string]string{
			"user_name": username,
			"password":  password,
		})
		if err != nil {
			return err
		}

		tkn, ok := res["access_token"].(string)
		if !ok || tkn == "" {
			return fmt.Errorf("server did not return an access token")
		}

		writeToken(tkn)
		fmt.Println("OK")
		return nil
	}
	return cmd
}

func logoutCommand() *command {
	cmd := newCommand("logout")
	cmd.Description = func() string { return "sign out and forget the session token" }
	cmd.Action = func() error {
		// the server only drops the cookie, the token is discarded here.
		_, _ = apiCall(http.MethodGet, authPrefix+"/signout", nil)
		if err := removeToken(); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}

func whoamiCommand() *command {
	cmd := newCommand("whoami")
	cmd.Description = func() string { return "show the signed-in session" }
	cmd.Action = func() error {
		res, err := apiCall(http.MethodGet, authPrefix+"/session", nil)
		if err != nil {
			return err
		}

		if auth, _ := res["authenticated"].(bool); !auth {
			fmt.Println("not signed in")
			return nil
		}

		u := res["user"]
		fmt.Printf("user: %s\n", str(u, "user_name"))
		if email := str(u, "email"); email != "" {
			fmt.Printf("email: %s\n", email)
		}
		if groups, ok := res["group_names"].([]interface{}); ok {
			for _, g := range groups {
				fmt.Printf("group: %v\n", g)
			}
		}
		return nil
	}
	return cmd
}
