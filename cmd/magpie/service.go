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

func serviceCreateCommand() *command {
	cmd := newCommand("service-create")
	cmd.Description = func() string { return "register a protected service" }
	cmd.Usage = func() string { return "Usage: service-create <name> <type> <url>" }
	cmd.Action = func() error {
		if cmd.NArg() < 3 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		res, err := apiCall(http.MethodPost, adminPrefix+"/services", map[string]string{
			"service_name": cmd.Args()[0],
			"service_type": cmd.Args()[1],
			"service_url":  cmd.Args()[2],
		})
		if err != nil {
			return err
		}
		return printBody(res, "service")
	}
	return cmd
}

func serviceListCommand() *command {
	cmd := newCommand("service-list")
	cmd.Description = func() string { return "list the registered services" }
	cmd.Usage = func() string { return "Usage: service-list [-type <service type>]" }
	serviceType := cmd.String("type", "", "only list services of this type")
	cmd.Action = func() error {
		p := adminPrefix + "/services"
		if *serviceType != "" {
			p += "?type=" + url.QueryEscape(*serviceType)
		}
		res, err := apiCall(http.MethodGet, p, nil)
		if err != nil {
			return err
		}
		for _, s := range listField(res, "services") {
			fmt.Printf("%d\t%s\t%s\t%s\n", num(s, "resource_id"), str(s, "service_name"), str(s, "service_type"), str(s, "service_url"))
		}
		return nil
	}
	return cmd
}

func serviceInfoCommand() *command {
	cmd := newCommand("service-info")
	cmd.Description = func() string { return "show one registered service" }
	cmd.Usage = func() string { return "Usage: service-info <name>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		res, err := apiCall(http.MethodGet, adminPrefix+"/services/"+url.PathEscape(cmd.Args()[0]), nil)
		if err != nil {
			return err
		}
		return printBody(res, "service")
	}
	return cmd
}

func serviceResourcesCommand() *command {
	cmd := newCommand("service-resources")
	cmd.Description = func() string { return "show the resource tree of a service" }
	cmd.Usage = func() string { return "Usage: service-resources <name>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		res, err := apiCall(http.MethodGet, adminPrefix+"/services/"+url.PathEscape(cmd.Args()[0])+"/resources", nil)
		if err != nil {
			return err
		}
		for _, n := range listField(res, "resources") {
			fmt.Printf("%d\t%d\t%s\t%s\n", num(n, "resource_id"), num(n, "parent_id"), str(n, "resource_type"), str(n, "resource_name"))
		}
		return nil
	}
	return cmd
}

func serviceDeleteCommand() *command {
	cmd := newCommand("service-delete")
	cmd.Description = func() string { return "remove a service with its resource tree" }
	cmd.Usage = func() string { return "Usage: service-delete <name>" }
	cmd.Action = func() error {
		if cmd.NArg() < 1 {
			return fmt.Errorf("%s", cmd.Usage())
		}
		if _, err := apiCall(http.MethodDelete, adminPrefix+"/services/"+url.PathEscape(cmd.Args()[0]), nil); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	}
	return cmd
}
