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
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/DACCS-Climate/Magpie/pkg/db"
	"github.com/DACCS-Climate/Magpie/pkg/errtypes"
	"github.com/DACCS-Climate/Magpie/pkg/identity"
	idsql "github.com/DACCS-Climate/Magpie/pkg/identity/manager/sql"
	"github.com/DACCS-Climate/Magpie/pkg/sharedconf"
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

func isInvalidCredentials(err error) bool {
	_, ok := err.(errtypes.IsInvalidCredentials)
	return ok
}

var _ = Describe("Identity sql manager", func() {
	var (
		mgr    identity.Manager
		ctx    context.Context
		dbFile *os.File

		groupNames = func(groups []*identity.Group) []string {
			names := make([]string, 0, len(groups))
			for _, g := range groups {
				names = append(names, g.Name)
			}
			return names
		}
		userNames = func(users []*identity.User) []string {
			names := make([]string, 0, len(users))
			for _, u := range users {
				names = append(names, u.Name)
			}
			return names
		}
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		dbFile, err = os.CreateTemp("", "identity-sql-test-*.db")
		Expect(err).ToNot(HaveOccurred())

		d, err := db.Open("sqlite3", "file:"+dbFile.Name()+"?_foreign_keys=on")
		Expect(err).ToNot(HaveOccurred())
		Expect(db.InitSchema(ctx, d, "sqlite3")).To(Succeed())

		mgr, err = idsql.NewFromDB("sqlite3", d)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		if dbFile != nil {
			os.Remove(dbFile.Name())
		}
	})

	Describe("NewFromDB", func() {
		It("seeds the well-known groups", func() {
			groups, err := mgr.ListGroups(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(groupNames(groups)).To(ConsistOf(
				sharedconf.GetAdminGroup(),
				sharedconf.GetAnonymousGroup(),
				sharedconf.GetUsersGroup(),
			))
		})

		It("leaves existing groups alone when constructed again", func() {
			_, err := mgr.CreateGroup(ctx, "editors")
			Expect(err).ToNot(HaveOccurred())

			d, err := db.Open("sqlite3", "file:"+dbFile.Name()+"?_foreign_keys=on")
			Expect(err).ToNot(HaveOccurred())
			_, err = idsql.NewFromDB("sqlite3", d)
			Expect(err).ToNot(HaveOccurred())

			groups, err := mgr.ListGroups(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(groups).To(HaveLen(4))
		})
	})

	Describe("CreateUser", func() {
		It("creates the user and joins it to the users group", func() {
			u, err := mgr.CreateUser(ctx, "alice", "alice@example.org", "secret")
			Expect(err).ToNot(HaveOccurred())
			Expect(u.ID).To(BeNumerically(">", 0))
			Expect(u.Name).To(Equal("alice"))
			Expect(u.Email).To(Equal("alice@example.org"))

			in, err := mgr.IsInGroup(ctx, "alice", sharedconf.GetUsersGroup())
			Expect(err).ToNot(HaveOccurred())
			Expect(in).To(BeTrue())
		})

		It("refuses a taken name", func() {
			_, err := mgr.CreateUser(ctx, "alice", "", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.CreateUser(ctx, "alice", "other@example.org", "")
			Expect(isAlreadyExists(err)).To(BeTrue())
		})

		It("refuses invalid names", func() {
			_, err := mgr.CreateUser(ctx, "", "", "")
			Expect(isBadRequest(err)).To(BeTrue())
			_, err = mgr.CreateUser(ctx, "no spaces", "", "")
			Expect(isBadRequest(err)).To(BeTrue())
		})

		It("accepts an empty password but never verifies it", func() {
			_, err := mgr.CreateUser(ctx, "bot", "", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.VerifyPassword(ctx, "bot", "")
			Expect(isInvalidCredentials(err)).To(BeTrue())
		})
	})

	Describe("GetUser", func() {
		BeforeEach(func() {
			_, err := mgr.CreateUser(ctx, "alice", "alice@example.org", "")
			Expect(err).ToNot(HaveOccurred())
		})

		It("finds users by name and by id", func() {
			u, err := mgr.GetUser(ctx, "alice")
			Expect(err).ToNot(HaveOccurred())

			byID, err := mgr.GetUserByID(ctx, u.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(byID).To(Equal(u))
		})

		It("returns not found for unknown users", func() {
			_, err := mgr.GetUser(ctx, "nobody")
			Expect(isNotFound(err)).To(BeTrue())
			_, err = mgr.GetUserByID(ctx, 4242)
			Expect(isNotFound(err)).To(BeTrue())
		})
	})

	Describe("ListUsers", func() {
		It("returns users sorted by name", func() {
			for _, name := range []string{"mallory", "alice", "bob"} {
				_, err := mgr.CreateUser(ctx, name, "", "")
				Expect(err).ToNot(HaveOccurred())
			}
			users, err := mgr.ListUsers(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(userNames(users)).To(Equal([]string{"alice", "bob", "mallory"}))
		})
	})

	Describe("DeleteUser", func() {
		It("removes the user with its memberships and identity links", func() {
			_, err := mgr.CreateUser(ctx, "alice", "", "")
			Expect(err).ToNot(HaveOccurred())
			Expect(mgr.LinkIdentity(ctx, "github", "gh-1", "alice-gh", "alice")).To(Succeed())

			Expect(mgr.DeleteUser(ctx, "alice")).To(Succeed())

			_, err = mgr.GetUser(ctx, "alice")
			Expect(isNotFound(err)).To(BeTrue())
			_, err = mgr.GetUserByIdentity(ctx, "github", "gh-1")
			Expect(isNotFound(err)).To(BeTrue())

			members, err := mgr.ListMembers(ctx, sharedconf.GetUsersGroup())
			Expect(err).ToNot(HaveOccurred())
			Expect(members).To(BeEmpty())
		})

		It("returns not found for unknown users", func() {
			Expect(isNotFound(mgr.DeleteUser(ctx, "nobody"))).To(BeTrue())
		})
	})

	Describe("groups", func() {
		It("creates and finds groups", func() {
			g, err := mgr.CreateGroup(ctx, "editors")
			Expect(err).ToNot(HaveOccurred())
			Expect(g.ID).To(BeNumerically(">", 0))

			byName, err := mgr.GetGroup(ctx, "editors")
			Expect(err).ToNot(HaveOccurred())
			Expect(byName).To(Equal(g))

			byID, err := mgr.GetGroupByID(ctx, g.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(byID).To(Equal(g))
		})

		It("refuses a taken name", func() {
			_, err := mgr.CreateGroup(ctx, "editors")
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.CreateGroup(ctx, "editors")
			Expect(isAlreadyExists(err)).To(BeTrue())
		})

		It("deletes groups", func() {
			_, err := mgr.CreateGroup(ctx, "editors")
			Expect(err).ToNot(HaveOccurred())
			Expect(mgr.DeleteGroup(ctx, "editors")).To(Succeed())
			_, err = mgr.GetGroup(ctx, "editors")
			Expect(isNotFound(err)).To(BeTrue())
		})

		It("refuses to delete the well-known groups", func() {
			for _, name := range []string{
				sharedconf.GetAdminGroup(),
				sharedconf.GetAnonymousGroup(),
				sharedconf.GetUsersGroup(),
			} {
				Expect(isPolicyViolation(mgr.DeleteGroup(ctx, name))).To(BeTrue())
			}
		})

		It("returns not found when deleting unknown groups", func() {
			Expect(isNotFound(mgr.DeleteGroup(ctx, "nobody"))).To(BeTrue())
		})
	})

	Describe("membership", func() {
		BeforeEach(func() {
			_, err := mgr.CreateUser(ctx, "alice", "", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = mgr.CreateGroup(ctx, "editors")
			Expect(err).ToNot(HaveOccurred())
		})

		It("adds and removes members", func() {
			Expect(mgr.AddMember(ctx, "alice", "editors")).To(Succeed())

			in, err := mgr.IsInGroup(ctx, "alice", "editors")
			Expect(err).ToNot(HaveOccurred())
			Expect(in).To(BeTrue())

			Expect(mgr.RemoveMember(ctx, "alice", "editors")).To(Succeed())

			in, err = mgr.IsInGroup(ctx, "alice", "editors")
			Expect(err).ToNot(HaveOccurred())
			Expect(in).To(BeFalse())
		})

		It("refuses duplicate memberships", func() {
			Expect(mgr.AddMember(ctx, "alice", "editors")).To(Succeed())
			Expect(isAlreadyExists(mgr.AddMember(ctx, "alice", "editors"))).To(BeTrue())
		})

		It("returns not found for unknown principals", func() {
			Expect(isNotFound(mgr.AddMember(ctx, "nobody", "editors"))).To(BeTrue())
			Expect(isNotFound(mgr.AddMember(ctx, "alice", "nogroup"))).To(BeTrue())
			Expect(isNotFound(mgr.RemoveMember(ctx, "alice", "editors"))).To(BeTrue())
		})

		It("lists members and group memberships", func() {
			_, err := mgr.CreateUser(ctx, "bob", "", "")
			Expect(err).ToNot(HaveOccurred())
			Expect(mgr.AddMember(ctx, "bob", "editors")).To(Succeed())
			Expect(mgr.AddMember(ctx, "alice", "editors")).To(Succeed())

			members, err := mgr.ListMembers(ctx, "editors")
			Expect(err).ToNot(HaveOccurred())
			Expect(userNames(members)).To(Equal([]string{"alice", "bob"}))

			groups, err := mgr.ListGroupsForUser(ctx, "alice")
			Expect(err).ToNot(HaveOccurred())
			Expect(groupNames(groups)).To(ConsistOf("editors", sharedconf.GetUsersGroup()))
		})
	})

	Describe("ResolvePrincipal", func() {
		BeforeEach(func() {
			_, err := mgr.CreateUser(ctx, "alice", "", "")
			Expect(err).ToNot(HaveOccurred())
		})

		It("always includes the anonymous group", func() {
			anon, err := mgr.GetGroup(ctx, sharedconf.GetAnonymousGroup())
			Expect(err).ToNot(HaveOccurred())

			pset, err := mgr.ResolvePrincipal(ctx, "alice")
			Expect(err).ToNot(HaveOccurred())
			Expect(pset.User.Name).To(Equal("alice"))
			Expect(pset.Admin).To(BeFalse())
			Expect(pset.HasGroup(anon.ID)).To(BeTrue())
		})

		It("flags members of the admin group", func() {
			Expect(mgr.AddMember(ctx, "alice", sharedconf.GetAdminGroup())).To(Succeed())

			pset, err := mgr.ResolvePrincipal(ctx, "alice")
			Expect(err).ToNot(HaveOccurred())
			Expect(pset.Admin).To(BeTrue())
		})

		It("returns not found for unknown users", func() {
			_, err := mgr.ResolvePrincipal(ctx, "nobody")
			Expect(isNotFound(err)).To(BeTrue())
		})

		It("resolves anonymous principals to the anonymous group only", func() {
			anon, err := mgr.GetGroup(ctx, sharedconf.GetAnonymousGroup())
			Expect(err).ToNot(HaveOccurred())

			pset, err := mgr.ResolveAnonymous(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(pset.User).To(BeNil())
			Expect(pset.Admin).To(BeFalse())
			Expect(pset.GroupIDs).To(Equal([]int64{anon.ID}))
		})
	})

	Describe("passwords", func() {
		BeforeEach(func() {
			_, err := mgr.CreateUser(ctx, "alice", "", "secret")
			Expect(err).ToNot(HaveOccurred())
		})

		It("verifies matching credentials", func() {
			u, err := mgr.VerifyPassword(ctx, "alice", "secret")
			Expect(err).ToNot(HaveOccurred())
			Expect(u.Name).To(Equal("alice"))
		})

		It("rejects a wrong password and unknown users alike", func() {
			_, err := mgr.VerifyPassword(ctx, "alice", "wrong")
			Expect(isInvalidCredentials(err)).To(BeTrue())
			_, err = mgr.VerifyPassword(ctx, "nobody", "secret")
			Expect(isInvalidCredentials(err)).To(BeTrue())
		})

		It("changes the password", func() {
			Expect(mgr.SetPassword(ctx, "alice", "rotated")).To(Succeed())

			_, err := mgr.VerifyPassword(ctx, "alice", "secret")
			Expect(isInvalidCredentials(err)).To(BeTrue())
			u, err := mgr.VerifyPassword(ctx, "alice", "rotated")
			Expect(err).ToNot(HaveOccurred())
			Expect(u.Name).To(Equal("alice"))
		})

		It("refuses an empty password", func() {
			Expect(isBadRequest(mgr.SetPassword(ctx, "alice", ""))).To(BeTrue())
		})

		It("returns not found for unknown users", func() {
			Expect(isNotFound(mgr.SetPassword(ctx, "nobody", "secret"))).To(BeTrue())
		})
	})

	Describe("identity links", func() {
		BeforeEach(func() {
			_, err := mgr.CreateUser(ctx, "alice", "", "")
			Expect(err).ToNot(HaveOccurred())
		})

		It("links and resolves external identities", func() {
			Expect(mgr.LinkIdentity(ctx, "github", "gh-1", "alice-gh", "alice")).To(Succeed())

			u, err := mgr.GetUserByIdentity(ctx, "github", "gh-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(u.Name).To(Equal("alice"))
		})

		It("lists a user's links sorted by provider and id", func() {
			Expect(mgr.LinkIdentity(ctx, "orcid", "0000-0001", "", "alice")).To(Succeed())
			Expect(mgr.LinkIdentity(ctx, "github", "gh-1", "alice-gh", "alice")).To(Succeed())

			links, err := mgr.ListIdentities(ctx, "alice")
			Expect(err).ToNot(HaveOccurred())
			Expect(links).To(HaveLen(2))
			Expect(links[0].Provider).To(Equal("github"))
			Expect(links[1].Provider).To(Equal("orcid"))
		})

		It("refuses a link that is already taken", func() {
			_, err := mgr.CreateUser(ctx, "bob", "", "")
			Expect(err).ToNot(HaveOccurred())
			Expect(mgr.LinkIdentity(ctx, "github", "gh-1", "", "alice")).To(Succeed())
			Expect(isAlreadyExists(mgr.LinkIdentity(ctx, "github", "gh-1", "", "bob"))).To(BeTrue())
		})

		It("refuses empty coordinates and unknown users", func() {
			Expect(isBadRequest(mgr.LinkIdentity(ctx, "", "gh-1", "", "alice"))).To(BeTrue())
			Expect(isBadRequest(mgr.LinkIdentity(ctx, "github", "", "", "alice"))).To(BeTrue())
			Expect(isNotFound(mgr.LinkIdentity(ctx, "github", "gh-1", "", "nobody"))).To(BeTrue())
		})

		It("unlinks identities", func() {
			Expect(mgr.LinkIdentity(ctx, "github", "gh-1", "", "alice")).To(Succeed())
			Expect(mgr.UnlinkIdentity(ctx, "github", "gh-1")).To(Succeed())

			_, err := mgr.GetUserByIdentity(ctx, "github", "gh-1")
			Expect(isNotFound(err)).To(BeTrue())
			Expect(isNotFound(mgr.UnlinkIdentity(ctx, "github", "gh-1"))).To(BeTrue())
		})
	})
})
