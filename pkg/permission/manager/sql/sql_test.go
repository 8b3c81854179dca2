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
	"github.com/DACCS-Climate/Magpie/pkg/permission"
	permsql "github.com/DACCS-Climate/Magpie/pkg/permission/manager/sql"
)

func isNotFound(err error) bool {
	_, ok := err.(errtypes.IsNotFound)
	return ok
}

func isBadRequest(err error) bool {
	_, ok := err.(errtypes.IsBadRequest)
	return ok
}

var _ = Describe("Permission sql manager", func() {
	var (
		mgr    permission.Manager
		handle *sql.DB
		ctx    context.Context
		dbFile *os.File

		alice, bob     int64
		editors        int64
		svcID, childID int64
	)

	insert := func(query string, args ...interface{}) int64 {
		res, err := handle.ExecContext(ctx, query, args...)
		Expect(err).ToNot(HaveOccurred())
		id, err := res.LastInsertId()
		Expect(err).ToNot(HaveOccurred())
		return id
	}

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		dbFile, err = os.CreateTemp("", "permission-sql-test-*.db")
		Expect(err).ToNot(HaveOccurred())

		handle, err = db.Open("sqlite3", "file:"+dbFile.Name()+"?_foreign_keys=on")
		Expect(err).ToNot(HaveOccurred())
		Expect(db.InitSchema(ctx, handle, "sqlite3")).To(Succeed())

		mgr, err = permsql.NewFromDB("sqlite3", handle)
		Expect(err).ToNot(HaveOccurred())

		// the entries reference users, groups and resources through
		// foreign keys, so a minimal world is seeded by hand
		alice = insert("INSERT INTO users (user_name) VALUES ('alice')")
		bob = insert("INSERT INTO users (user_name) VALUES ('bob')")
		editors = insert("INSERT INTO `groups` (group_name) VALUES ('editors')")
		svcID = insert("INSERT INTO resources (resource_name, resource_type, parent_id, root_service_id) VALUES ('birdhouse', 'service', NULL, 0)")
		childID = insert("INSERT INTO resources (resource_name, resource_type, parent_id, root_service_id) VALUES ('ncml', 'directory', ?, ?)", svcID, svcID)
	})

	AfterEach(func() {
		if dbFile != nil {
			os.Remove(dbFile.Name())
		}
	})

	entry := func(userID, groupID, resourceID int64, name string, access permission.Access, scope permission.Scope) *permission.Entry {
		return &permission.Entry{
			UserID:     userID,
			GroupID:    groupID,
			ResourceID: resourceID,
			Set:        permission.Set{Name: name, Access: access, Scope: scope},
		}
	}

	Describe("Upsert", func() {
		It("stores an entry and reads it back", func() {
			stored, err := mgr.Upsert(ctx, entry(alice, 0, svcID, "read", permission.Allow, permission.Recursive))
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.ID).To(BeNumerically(">", 0))
			Expect(stored.UserID).To(Equal(alice))
			Expect(stored.GroupID).To(BeZero())
			Expect(stored.ResourceID).To(Equal(svcID))
			Expect(stored.Set).To(Equal(permission.Set{Name: "read", Access: permission.Allow, Scope: permission.Recursive}))
		})

		It("replaces access and scope on the same principal, resource and name", func() {
			first, err := mgr.Upsert(ctx, entry(alice, 0, svcID, "read", permission.Allow, permission.Recursive))
			Expect(err).ToNot(HaveOccurred())

			second, err := mgr.Upsert(ctx, entry(alice, 0, svcID, "read", permission.Deny, permission.Match))
			Expect(err).ToNot(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))
			Expect(second.Access).To(Equal(permission.Deny))
			Expect(second.Scope).To(Equal(permission.Match))

			all, err := mgr.ListForUser(ctx, alice)
			Expect(err).ToNot(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})

		It("keeps user and group entries for the same name apart", func() {
			_, err := mgr.Upsert(ctx, entry(alice, 0, svcID, "read", permission.Allow, permission.Match))
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.Upsert(ctx, entry(0, editors, svcID, "read", permission.Deny, permission.Match))
			Expect(err).ToNot(HaveOccurred())

			onRes, err := mgr.ListForResource(ctx, svcID)
			Expect(err).ToNot(HaveOccurred())
			Expect(onRes).To(HaveLen(2))
		})

		It("validates the entry", func() {
			for _, e := range []*permission.Entry{
				entry(alice, editors, svcID, "read", permission.Allow, permission.Match),
				entry(0, 0, svcID, "read", permission.Allow, permission.Match),
				entry(alice, 0, 0, "read", permission.Allow, permission.Match),
				entry(alice, 0, svcID, "", permission.Allow, permission.Match),
				entry(alice, 0, svcID, "read", "grant", permission.Match),
				entry(alice, 0, svcID, "read", permission.Allow, "tree"),
			} {
				_, err := mgr.Upsert(ctx, e)
				Expect(isBadRequest(err)).To(BeTrue())
			}
		})
	})

	Describe("Clear", func() {
		It("removes the matching entry", func() {
			_, err := mgr.Upsert(ctx, entry(alice, 0, svcID, "read", permission.Allow, permission.Match))
			Expect(err).ToNot(HaveOccurred())

			Expect(mgr.Clear(ctx, entry(alice, 0, svcID, "read", "", ""))).To(Succeed())

			all, err := mgr.ListForUser(ctx, alice)
			Expect(err).ToNot(HaveOccurred())
			Expect(all).To(BeEmpty())
		})

		It("returns not found for absent entries", func() {
			Expect(isNotFound(mgr.Clear(ctx, entry(alice, 0, svcID, "read", "", "")))).To(BeTrue())
		})
	})

	Describe("listing", func() {
		BeforeEach(func() {
			_, err := mgr.Upsert(ctx, entry(alice, 0, svcID, "read", permission.Allow, permission.Recursive))
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.Upsert(ctx, entry(alice, 0, childID, "write", permission.Deny, permission.Match))
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.Upsert(ctx, entry(0, editors, childID, "read", permission.Deny, permission.Match))
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.Upsert(ctx, entry(bob, 0, childID, "read", permission.Allow, permission.Match))
			Expect(err).ToNot(HaveOccurred())
		})

		It("lists by user, group and resource", func() {
			byUser, err := mgr.ListForUser(ctx, alice)
			Expect(err).ToNot(HaveOccurred())
			Expect(byUser).To(HaveLen(2))

			byGroup, err := mgr.ListForGroup(ctx, editors)
			Expect(err).ToNot(HaveOccurred())
			Expect(byGroup).To(HaveLen(1))
			Expect(byGroup[0].GroupID).To(Equal(editors))

			byRes, err := mgr.ListForResource(ctx, childID)
			Expect(err).ToNot(HaveOccurred())
			Expect(byRes).To(HaveLen(3))
		})

		It("batches the path read to the given name, resources and principals", func() {
			found, err := mgr.ListOnPath(ctx, alice, []int64{editors}, []int64{svcID, childID}, "read")
			Expect(err).ToNot(HaveOccurred())
			Expect(found).To(HaveLen(2))
			for _, e := range found {
				Expect(e.Name).To(Equal("read"))
				Expect(e.UserID == alice || e.GroupID == editors).To(BeTrue())
			}
		})

		It("returns nothing without resources or principals", func() {
			found, err := mgr.ListOnPath(ctx, alice, []int64{editors}, nil, "read")
			Expect(err).ToNot(HaveOccurred())
			Expect(found).To(BeNil())

			found, err = mgr.ListOnPath(ctx, 0, nil, []int64{svcID}, "read")
			Expect(err).ToNot(HaveOccurred())
			Expect(found).To(BeNil())
		})

		It("reads group entries for anonymous principals", func() {
			found, err := mgr.ListOnPath(ctx, 0, []int64{editors}, []int64{svcID, childID}, "read")
			Expect(err).ToNot(HaveOccurred())
			Expect(found).To(HaveLen(1))
			Expect(found[0].GroupID).To(Equal(editors))
		})
	})

	Describe("bulk clearing", func() {
		BeforeEach(func() {
			_, err := mgr.Upsert(ctx, entry(alice, 0, svcID, "read", permission.Allow, permission.Recursive))
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.Upsert(ctx, entry(alice, 0, childID, "read", permission.Allow, permission.Match))
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.Upsert(ctx, entry(0, editors, childID, "write", permission.Deny, permission.Match))
			Expect(err).ToNot(HaveOccurred())
		})

		It("clears every entry on the given resources", func() {
			Expect(mgr.ClearForResources(ctx, []int64{svcID, childID})).To(Succeed())

			for _, id := range []int64{svcID, childID} {
				left, err := mgr.ListForResource(ctx, id)
				Expect(err).ToNot(HaveOccurred())
				Expect(left).To(BeEmpty())
			}
		})

		It("clears every entry held by a user or a group", func() {
			Expect(mgr.ClearForUser(ctx, alice)).To(Succeed())
			byUser, err := mgr.ListForUser(ctx, alice)
			Expect(err).ToNot(HaveOccurred())
			Expect(byUser).To(BeEmpty())

			Expect(mgr.ClearForGroup(ctx, editors)).To(Succeed())
			byGroup, err := mgr.ListForGroup(ctx, editors)
			Expect(err).ToNot(HaveOccurred())
			Expect(byGroup).To(BeEmpty())
		})

		It("tolerates empty id lists", func() {
			Expect(mgr.ClearForResources(ctx, nil)).To(Succeed())
		})
	})
})
