package journal_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/t1meshift/ydb/journal"
)

func TestJournalScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "journal scenarios")
}

var _ = Describe("journal crash consistency", func() {
	var dir, path string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "j.jrnl")
	})

	It("S5: truncates a torn single-record tail back to an empty journal", func() {
		j, err := journal.Create(path, journal.Options{})
		Expect(err).NotTo(HaveOccurred())

		tx := journal.NewTransaction()
		tx.SetTimestamp(1700000000)
		tx.SetFlags(0)
		tx.PushOp(journal.Op{Code: journal.OpPageAlloc, Data: []byte("ABCD")})
		Expect(j.Append(tx)).To(Succeed())
		Expect(j.Close()).To(Succeed())

		truncateFile(path, 3)

		reopened, err := journal.Open(path, journal.Options{})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(reopened.Close)

		Expect(reopened.SeekToBegin()).To(MatchError(ContainSubstring("empty")))

		fi, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(fi.Size()).To(Equal(int64(journal.HeaderSize)))
	})

	It("S6: truncates a torn second-record tail back to the first record", func() {
		j, err := journal.Create(path, journal.Options{})
		Expect(err).NotTo(HaveOccurred())

		t1 := journal.NewTransaction()
		t1.SetTimestamp(1700000000)
		t1.PushOp(journal.Op{Code: journal.OpPageAlloc, Data: []byte("ABCD")})
		Expect(j.Append(t1)).To(Succeed())
		t1Offset := sizeAfterFirstRecord(path)

		t2 := journal.NewTransaction()
		t2.SetTimestamp(1700000001)
		t2.PushOp(journal.Op{Code: journal.OpPageModify, Data: []byte("EFGH")})
		Expect(j.Append(t2)).To(Succeed())
		Expect(j.Close()).To(Succeed())

		truncateFile(path, 3)

		reopened, err := journal.Open(path, journal.Options{})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(reopened.Close)

		Expect(reopened.SeekToBegin()).To(Succeed())
		Expect(reopened.Current().Timestamp()).To(Equal(int64(1700000000)))
		Expect(reopened.Next()).To(MatchError(ContainSubstring("no transaction after")))

		fi, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(fi.Size()).To(Equal(t1Offset))
	})
})

func truncateFile(path string, trimBytes int64) {
	fi, err := os.Stat(path)
	Expect(err).NotTo(HaveOccurred())
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	Expect(f.Truncate(fi.Size() - trimBytes)).To(Succeed())
}

func sizeAfterFirstRecord(path string) int64 {
	fi, err := os.Stat(path)
	Expect(err).NotTo(HaveOccurred())
	return fi.Size()
}
