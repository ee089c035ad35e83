package dircache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/dircache/dirfs"
)

func Test_GenerationalWrite_Overwrites_Single_Generation_When_MaxGenerations_Is_One(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := dirfs.NewReal()
	mock := clock.NewMock()

	entry := &Entry{Dir: dir}
	gen := GenerationOpt{MaxGenerations: 1, OldGenEncoding: Plain, Expiration: NoExpiry()}

	if err := generationalWrite(fsys, mock, entry, []byte("v1"), gen); err != nil {
		t.Fatalf("write 1: %v", err)
	}

	mock.Add(time.Second)

	if err := generationalWrite(fsys, mock, entry, []byte("v2"), gen); err != nil {
		t.Fatalf("write 2: %v", err)
	}

	if len(entry.OnDisk) != 1 {
		t.Fatalf("len(OnDisk) = %d, want 1", len(entry.OnDisk))
	}

	g0, err := os.ReadFile(filepath.Join(dir, generationFileName(0)))
	if err != nil {
		t.Fatalf("reading generation-0: %v", err)
	}

	if string(g0) != "v2" {
		t.Fatalf("generation-0 = %q, want %q", g0, "v2")
	}

	if _, err := os.Stat(filepath.Join(dir, generationFileName(1))); !os.IsNotExist(err) {
		t.Fatalf("generation-1 should not exist, stat err = %v", err)
	}
}

func Test_GenerationalWrite_Promotes_And_Truncates_When_Max_Generations_Four(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := dirfs.NewReal()
	mock := clock.NewMock()

	entry := &Entry{Dir: dir}
	gen := GenerationOpt{MaxGenerations: 4, OldGenEncoding: Plain, Expiration: NoExpiry()}

	values := []string{"gen5", "gen4", "gen3", "gen2", "gen1", "gen0"}

	for _, v := range values {
		if err := generationalWrite(fsys, mock, entry, []byte(v), gen); err != nil {
			t.Fatalf("write %q: %v", v, err)
		}

		mock.Add(time.Second)
	}

	wantContents := map[int]string{0: "gen0", 1: "gen1", 2: "gen2", 3: "gen3"}

	for i, want := range wantContents {
		got, err := os.ReadFile(filepath.Join(dir, generationFileName(i)))
		if err != nil {
			t.Fatalf("reading generation-%d: %v", i, err)
		}

		if string(got) != want {
			t.Fatalf("generation-%d = %q, want %q", i, got, want)
		}
	}

	for _, i := range []int{4, 5} {
		if _, err := os.Stat(filepath.Join(dir, generationFileName(i))); !os.IsNotExist(err) {
			t.Fatalf("generation-%d should not exist, stat err = %v", i, err)
		}
	}

	// Written at t=5,4,3,2 seconds respectively (gen0 newest); the record
	// list must preserve that order after promotion, not just the files.
	wantOnDisk := []GenerationRecord{
		{Age: 5 * time.Second, Encoding: Plain},
		{Age: 4 * time.Second, Encoding: Plain},
		{Age: 3 * time.Second, Encoding: Plain},
		{Age: 2 * time.Second, Encoding: Plain},
	}

	if diff := cmp.Diff(wantOnDisk, entry.OnDisk); diff != "" {
		t.Fatalf("OnDisk mismatch (-want +got):\n%s", diff)
	}
}

func Test_GenerationalWrite_Ages_Oldest_Generation_When_OldGenEncoding_Is_Not_Plain(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := dirfs.NewReal()
	mock := clock.NewMock()

	entry := &Entry{Dir: dir}
	gen := GenerationOpt{MaxGenerations: 2, OldGenEncoding: Encoding(99), Expiration: NoExpiry()}

	registerEncoder(Encoding(99), func(data []byte) ([]byte, error) {
		return append([]byte("AGED:"), data...), nil
	})

	if err := generationalWrite(fsys, mock, entry, []byte("v1"), gen); err != nil {
		t.Fatalf("write 1: %v", err)
	}

	mock.Add(time.Second)

	if err := generationalWrite(fsys, mock, entry, []byte("v2"), gen); err != nil {
		t.Fatalf("write 2: %v", err)
	}

	g1, err := os.ReadFile(filepath.Join(dir, generationFileName(1)))
	if err != nil {
		t.Fatalf("reading generation-1: %v", err)
	}

	if string(g1) != "AGED:v1" {
		t.Fatalf("generation-1 = %q, want %q", g1, "AGED:v1")
	}

	if entry.OnDisk[1].Encoding != Encoding(99) {
		t.Fatalf("OnDisk[1].Encoding = %v, want 99", entry.OnDisk[1].Encoding)
	}

	if entry.OnDisk[0].Encoding != Plain {
		t.Fatalf("OnDisk[0].Encoding = %v, want Plain", entry.OnDisk[0].Encoding)
	}
}

func Test_ReadFromDir_Returns_Nil_When_No_Manifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := dirfs.NewReal()
	mock := clock.NewMock()

	entry, err := readFromDir(fsys, mock, dir, false, GenerationOpt{MaxGenerations: 1, Expiration: NoExpiry()})
	if err != nil {
		t.Fatalf("readFromDir: %v", err)
	}

	if entry != nil {
		t.Fatalf("entry = %+v, want nil", entry)
	}
}

func Test_ReadFromDir_Prunes_Expired_Suffix_And_Removes_Files_When_Invoked(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := dirfs.NewReal()
	mock := clock.NewMock()

	gen := GenerationOpt{MaxGenerations: 3, OldGenEncoding: Plain, Expiration: ExpiresAfter(5 * time.Second)}

	entry := &Entry{Dir: dir}

	if err := generationalWrite(fsys, mock, entry, []byte("a"), gen); err != nil {
		t.Fatalf("write a: %v", err)
	}

	mock.Add(10 * time.Second)

	if err := generationalWrite(fsys, mock, entry, []byte("b"), gen); err != nil {
		t.Fatalf("write b: %v", err)
	}

	mock.Add(3 * time.Second)

	got, err := readFromDir(fsys, mock, dir, false, gen)
	if err != nil {
		t.Fatalf("readFromDir: %v", err)
	}

	if got == nil {
		t.Fatal("entry should survive with generation-0 unexpired")
	}

	if len(got.OnDisk) != 1 {
		t.Fatalf("len(OnDisk) = %d, want 1", len(got.OnDisk))
	}

	if _, err := os.Stat(filepath.Join(dir, generationFileName(1))); !os.IsNotExist(err) {
		t.Fatalf("generation-1 should have been removed, stat err = %v", err)
	}
}

func Test_ReadFromDir_Returns_Nil_And_Removes_Manifest_When_All_Generations_Expired(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := dirfs.NewReal()
	mock := clock.NewMock()

	gen := GenerationOpt{MaxGenerations: 1, OldGenEncoding: Plain, Expiration: ExpiresAfter(time.Second)}

	entry := &Entry{Dir: dir}

	if err := generationalWrite(fsys, mock, entry, []byte("a"), gen); err != nil {
		t.Fatalf("write: %v", err)
	}

	mock.Add(10 * time.Second)

	got, err := readFromDir(fsys, mock, dir, false, gen)
	if err != nil {
		t.Fatalf("readFromDir: %v", err)
	}

	if got != nil {
		t.Fatalf("entry = %+v, want nil", got)
	}

	if _, err := os.Stat(manifestPath(dir)); !os.IsNotExist(err) {
		t.Fatalf("manifest should have been removed, stat err = %v", err)
	}
}

func Test_InsertNewData_MemoryOnly_Writes_Nothing_To_Disk_When_Invoked(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "entry")
	fsys := dirfs.NewReal()
	mock := clock.NewMock()

	entry, err := insertNewData(fsys, mock, dir, []byte("v"), MemoryOnly, GenerationOpt{MaxGenerations: 1, Expiration: NoExpiry()})
	if err != nil {
		t.Fatalf("insertNewData: %v", err)
	}

	if entry.InMem == nil || entry.InMem.Committed {
		t.Fatalf("InMem = %+v, want present and uncommitted", entry.InMem)
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("entry directory should not have been created, stat err = %v", err)
	}
}

func Test_InsertNewData_RetainAndWrite_Marks_Committed_When_Invoked(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := dirfs.NewReal()
	mock := clock.NewMock()

	entry, err := insertNewData(fsys, mock, dir, []byte("v"), RetainAndWrite, GenerationOpt{MaxGenerations: 1, Expiration: NoExpiry()})
	if err != nil {
		t.Fatalf("insertNewData: %v", err)
	}

	if entry.InMem == nil || !entry.InMem.Committed {
		t.Fatalf("InMem = %+v, want present and committed", entry.InMem)
	}
}

func Test_DumpInMem_Flushes_Uncommitted_Value_When_Invoked(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := dirfs.NewReal()
	mock := clock.NewMock()

	gen := GenerationOpt{MaxGenerations: 1, Expiration: NoExpiry()}

	entry, err := insertNewData(fsys, mock, dir, []byte("v"), MemoryOnly, gen)
	if err != nil {
		t.Fatalf("insertNewData: %v", err)
	}

	if err := dumpInMem(fsys, mock, entry, true, gen); err != nil {
		t.Fatalf("dumpInMem: %v", err)
	}

	if !entry.InMem.Committed {
		t.Fatal("InMem should be committed after dumpInMem")
	}

	got, err := os.ReadFile(filepath.Join(dir, generationFileName(0)))
	if err != nil {
		t.Fatalf("reading generation-0: %v", err)
	}

	if string(got) != "v" {
		t.Fatalf("generation-0 = %q, want %q", got, "v")
	}
}

func Test_GenerationalWrite_Returns_Error_When_Promotion_Rename_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mock := clock.NewMock()

	real := dirfs.NewReal()
	chaos := dirfs.NewChaos(real)
	chaos.FailNth("Rename", 1, errSentinel)

	entry := &Entry{Dir: dir}
	gen := GenerationOpt{MaxGenerations: 2, OldGenEncoding: Plain, Expiration: NoExpiry()}

	if err := generationalWrite(real, mock, entry, []byte("v1"), gen); err != nil {
		t.Fatalf("write 1: %v", err)
	}

	err := generationalWrite(chaos, mock, entry, []byte("v2"), gen)
	if !errors.Is(err, ErrWriteContent) {
		t.Fatalf("err = %v, want ErrWriteContent", err)
	}
}

var errSentinel = errors.New("injected failure")
