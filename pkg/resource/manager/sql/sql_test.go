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

package sql_test

import (
	"context"
	"database/sql"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/DACCS-Climate/Magpie/pkg/db"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/resource"
	ressql "github.com/DACCS-Climate/Magpie/pkg/resource/manager/sql"
	_ "github.com/DACCS-Climate/Magpie/pkg/service/types/loader"
)

func isNotFound(err error) bool {
	_, ok := err.(errtypes.IsNotFound)
	return ok
}

func isAlreadyExists(err error) bool {
	_, ok := err.(errtypes.IsAlreadyExists)
	return ok
}

func isBadRequest(err error) bool {
	_, ok := err.(errtypes.IsBadRequest)
	return ok
}

func isPolicyViolation(err error) bool {
	_, ok := err.(errtypes.IsPolicyViolation)
	return ok
}

var _ = Describe("Resource sql manager", func() {
	var (
		mgr    resource.Manager
		handle *sql.DB
		ctx    context.Context
		dbFile *os.File

		names = func(rs []*resource.Resource) []string {
			out := make([]string, 0, len(rs))
			for _, r := range rs {
				out = append(out, r.Name)
			}
			return out
		}
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		dbFile, err = os.CreateTemp("", "resource-sql-test-*.db")
		Expect(err).ToNot(HaveOccurred())

		handle, err = db.Open("sqlite3", "file:"+dbFile.Name()+"?_foreign_keys=on")
		Expect(err).ToNot(HaveOccurred())
		Expect(db.InitSchema(ctx, handle, "sqlite3")).To(Succeed())

		mgr, err = ressql.NewFromDB("sqlite3", handle)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		if dbFile != nil {
			os.Remove(dbFile.Name())
		}
	})

	Describe("CreateService", func() {
		It("registers a tree root", func() {
			svc, err := mgr.CreateService(ctx, "birdhouse", "thredds", "http://thredds:8080")
			Expect(err).ToNot(HaveOccurred())
			Expect(svc.ID).To(BeNumerically(">", 0))
			Expect(svc.Type).To(Equal(resource.TypeService))
			Expect(svc.RootServiceID).To(Equal(svc.ID))
			Expect(svc.IsRoot()).To(BeTrue())
			Expect(svc.ServiceType).To(Equal("thredds"))
			Expect(svc.URL).To(Equal("http://thredds:8080"))
		})

		It("refuses a taken name even for another service type", func() {
			_, err := mgr.CreateService(ctx, "birdhouse", "thredds", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.CreateService(ctx, "birdhouse", "api", "")
			Expect(isAlreadyExists(err)).To(BeTrue())
		})

		It("refuses unknown service types", func() {
			_, err := mgr.CreateService(ctx, "birdhouse", "gopher", "")
			Expect(isBadRequest(err)).To(BeTrue())
		})

		It("refuses names that cannot be a path segment", func() {
			_, err := mgr.CreateService(ctx, "a/b", "thredds", "")
			Expect(isBadRequest(err)).To(BeTrue())
		})
	})

	Describe("service lookups", func() {
		BeforeEach(func() {
			_, err := mgr.CreateService(ctx, "birdhouse", "thredds", "http://thredds:8080")
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.CreateService(ctx, "flyingpigeon", "wps", "http://wps:8080")
			Expect(err).ToNot(HaveOccurred())
		})

		It("finds services by id and by name", func() {
			byName, err := mgr.GetServiceByName(ctx, "birdhouse")
			Expect(err).ToNot(HaveOccurred())

			byID, err := mgr.GetService(ctx, byName.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(byID).To(Equal(byName))
		})

		It("returns not found for unknown services", func() {
			_, err := mgr.GetServiceByName(ctx, "nothing")
			Expect(isNotFound(err)).To(BeTrue())
			_, err = mgr.GetService(ctx, 4242)
			Expect(isNotFound(err)).To(BeTrue())
		})

		It("lists services sorted by name and filters by type", func() {
			all, err := mgr.ListServices(ctx, "")
			Expect(err).ToNot(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[0].Name).To(Equal("birdhouse"))
			Expect(all[1].Name).To(Equal("flyingpigeon"))

			wps, err := mgr.ListServices(ctx, "wps")
			Expect(err).ToNot(HaveOccurred())
			Expect(wps).To(HaveLen(1))
			Expect(wps[0].Name).To(Equal("flyingpigeon"))
		})
	})

	Describe("CreateResource", func() {
		var svc *resource.Service

		BeforeEach(func() {
			var err error
			svc, err = mgr.CreateService(ctx, "birdhouse", "thredds", "")
			Expect(err).ToNot(HaveOccurred())
		})

		It("creates children following the service type rules", func() {
			dir, err := mgr.CreateResource(ctx, svc.ID, "birdhouse-data", resource.TypeDirectory)
			Expect(err).ToNot(HaveOccurred())
			Expect(dir.ParentID).To(Equal(svc.ID))
			Expect(dir.RootServiceID).To(Equal(svc.ID))

			file, err := mgr.CreateResource(ctx, dir.ID, "tasmax.nc", resource.TypeFile)
			Expect(err).ToNot(HaveOccurred())
			Expect(file.RootServiceID).To(Equal(svc.ID))
		})

		It("refuses a child type the service type does not allow", func() {
			_, err := mgr.CreateResource(ctx, svc.ID, "tasmax.nc", resource.TypeFile)
			Expect(isPolicyViolation(err)).To(BeTrue())
		})

		It("refuses nested service roots", func() {
			_, err := mgr.CreateResource(ctx, svc.ID, "inner", resource.TypeService)
			Expect(isBadRequest(err)).To(BeTrue())
		})

		It("refuses duplicate sibling names", func() {
			_, err := mgr.CreateResource(ctx, svc.ID, "data", resource.TypeDirectory)
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.CreateResource(ctx, svc.ID, "data", resource.TypeDirectory)
			Expect(isAlreadyExists(err)).To(BeTrue())
		})

		It("accepts the same name under different parents", func() {
			a, err := mgr.CreateResource(ctx, svc.ID, "a", resource.TypeDirectory)
			Expect(err).ToNot(HaveOccurred())
			b, err := mgr.CreateResource(ctx, svc.ID, "b", resource.TypeDirectory)
			Expect(err).ToNot(HaveOccurred())

			_, err = mgr.CreateResource(ctx, a.ID, "data", resource.TypeDirectory)
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.CreateResource(ctx, b.ID, "data", resource.TypeDirectory)
			Expect(err).ToNot(HaveOccurred())
		})

		It("returns not found for unknown parents", func() {
			_, err := mgr.CreateResource(ctx, 4242, "data", resource.TypeDirectory)
			Expect(isNotFound(err)).To(BeTrue())
		})
	})

	Describe("tree walking", func() {
		// birdhouse (thredds)
		//   ├── ncml
		//   │     └── tasmax.nc
		//   └── birdhouse-data
		var (
			svc        *resource.Service
			ncml, data *resource.Resource
			tasmax     *resource.Resource
		)

		BeforeEach(func() {
			var err error
			svc, err = mgr.CreateService(ctx, "birdhouse", "thredds", "")
			Expect(err).ToNot(HaveOccurred())
			ncml, err = mgr.CreateResource(ctx, svc.ID, "ncml", resource.TypeDirectory)
			Expect(err).ToNot(HaveOccurred())
			data, err = mgr.CreateResource(ctx, svc.ID, "birdhouse-data", resource.TypeDirectory)
			Expect(err).ToNot(HaveOccurred())
			tasmax, err = mgr.CreateResource(ctx, ncml.ID, "tasmax.nc", resource.TypeFile)
			Expect(err).ToNot(HaveOccurred())
		})

		It("lists children sorted by name", func() {
			kids, err := mgr.ListChildren(ctx, svc.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(names(kids)).To(Equal([]string{"birdhouse-data", "ncml"}))

			_, err = mgr.ListChildren(ctx, 4242)
			Expect(isNotFound(err)).To(BeTrue())
		})

		It("returns subtrees parents before children", func() {
			all, err := mgr.Subtree(ctx, svc.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(names(all)).To(Equal([]string{"birdhouse", "birdhouse-data", "ncml", "tasmax.nc"}))

			sub, err := mgr.Subtree(ctx, ncml.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(names(sub)).To(Equal([]string{"ncml", "tasmax.nc"}))
		})

		It("returns the ancestor chain from the root down", func() {
			chain, err := mgr.Ancestors(ctx, tasmax.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(names(chain)).To(Equal([]string{"birdhouse", "ncml", "tasmax.nc"}))
		})

		It("walks paths and reports the unmatched tail", func() {
			chain, tail, err := mgr.LookupPath(ctx, svc.ID, []string{"ncml", "tasmax.nc"})
			Expect(err).ToNot(HaveOccurred())
			Expect(tail).To(BeEmpty())
			Expect(names(chain)).To(Equal([]string{"birdhouse", "ncml", "tasmax.nc"}))

			chain, tail, err = mgr.LookupPath(ctx, svc.ID, []string{"ncml", "pr.nc", "deeper"})
			Expect(err).ToNot(HaveOccurred())
			Expect(names(chain)).To(Equal([]string{"birdhouse", "ncml"}))
			Expect(tail).To(Equal([]string{"pr.nc", "deeper"}))
		})

		It("renames resources", func() {
			Expect(mgr.Rename(ctx, ncml.ID, "catalog")).To(Succeed())
			r, err := mgr.GetResource(ctx, ncml.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(r.Name).To(Equal("catalog"))
		})

		It("refuses renaming onto a sibling", func() {
			Expect(isAlreadyExists(mgr.Rename(ctx, ncml.ID, "birdhouse-data"))).To(BeTrue())
		})

		It("refuses renaming a root onto another service", func() {
			_, err := mgr.CreateService(ctx, "flyingpigeon", "wps", "")
			Expect(err).ToNot(HaveOccurred())
			Expect(isAlreadyExists(mgr.Rename(ctx, svc.ID, "flyingpigeon"))).To(BeTrue())
		})

		It("moves resources below a new parent", func() {
			Expect(mgr.Move(ctx, tasmax.ID, data.ID)).To(Succeed())

			kids, err := mgr.ListChildren(ctx, data.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(names(kids)).To(Equal([]string{"tasmax.nc"}))
		})

		It("refuses moving roots, across services and into own subtree", func() {
			Expect(isBadRequest(mgr.Move(ctx, svc.ID, data.ID))).To(BeTrue())

			other, err := mgr.CreateService(ctx, "flyingpigeon", "thredds", "")
			Expect(err).ToNot(HaveOccurred())
			otherDir, err := mgr.CreateResource(ctx, other.ID, "outputs", resource.TypeDirectory)
			Expect(err).ToNot(HaveOccurred())
			Expect(isPolicyViolation(mgr.Move(ctx, ncml.ID, otherDir.ID))).To(BeTrue())

			below, err := mgr.CreateResource(ctx, ncml.ID, "deeper", resource.TypeDirectory)
			Expect(err).ToNot(HaveOccurred())
			Expect(isPolicyViolation(mgr.Move(ctx, ncml.ID, below.ID))).To(BeTrue())
		})

		It("refuses moving below a parent the type rules forbid", func() {
			// files accept no children under thredds
			Expect(isPolicyViolation(mgr.Move(ctx, data.ID, tasmax.ID))).To(BeTrue())
		})

		It("deletes subtrees leaves first and reports every node", func() {
			ids, err := mgr.DeleteSubtree(ctx, svc.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(ids).To(ConsistOf(svc.ID, ncml.ID, data.ID, tasmax.ID))

			for _, id := range ids {
				_, err := mgr.GetResource(ctx, id)
				Expect(isNotFound(err)).To(BeTrue())
			}
		})

		It("leaves other trees alone when deleting", func() {
			other, err := mgr.CreateService(ctx, "flyingpigeon", "wps", "")
			Expect(err).ToNot(HaveOccurred())

			_, err = mgr.DeleteSubtree(ctx, ncml.ID)
			Expect(err).ToNot(HaveOccurred())

			_, err = mgr.GetService(ctx, other.ID)
			Expect(err).ToNot(HaveOccurred())
			kids, err := mgr.ListChildren(ctx, svc.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(names(kids)).To(Equal([]string{"birdhouse-data"}))
		})
	})

	Describe("ownership", func() {
		var (
			svc    *resource.Service
			userID int64
		)

		BeforeEach(func() {
			var err error
			svc, err = mgr.CreateService(ctx, "birdhouse", "thredds", "")
			Expect(err).ToNot(HaveOccurred())

			res, err := handle.ExecContext(ctx,
				"INSERT INTO users (user_name, email, password_hash) VALUES ('alice', '', '')")
			Expect(err).ToNot(HaveOccurred())
			userID, err = res.LastInsertId()
			Expect(err).ToNot(HaveOccurred())
		})

		It("assigns, counts and releases user ownership", func() {
			Expect(mgr.SetOwner(ctx, svc.ID, userID, 0)).To(Succeed())

			r, err := mgr.GetResource(ctx, svc.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(r.OwnerUserID).To(Equal(userID))

			n, err := mgr.CountOwnedByUser(ctx, userID)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(1))

			Expect(mgr.ReleaseOwnedByUser(ctx, userID)).To(Succeed())
			n, err = mgr.CountOwnedByUser(ctx, userID)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("clears an owner with a zero id", func() {
			Expect(mgr.SetOwner(ctx, svc.ID, userID, 0)).To(Succeed())
			Expect(mgr.SetOwner(ctx, svc.ID, 0, 0)).To(Succeed())

			r, err := mgr.GetResource(ctx, svc.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(r.OwnerUserID).To(BeZero())
		})

		It("returns not found for unknown resources", func() {
			Expect(isNotFound(mgr.SetOwner(ctx, 4242, userID, 0))).To(BeTrue())
		})
	})
})
