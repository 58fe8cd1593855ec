package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func fixtureFS() fstest.MapFS {
	return fstest.MapFS{
		"steps/0001_create_members.up.sql":   {Data: []byte("CREATE TABLE members (id bigserial PRIMARY KEY);")},
		"steps/0001_create_members.down.sql": {Data: []byte("DROP TABLE members;")},
		"steps/0002_create_visits.up.sql":    {Data: []byte("CREATE TABLE visits (id bigserial PRIMARY KEY);")},
		"steps/0002_create_visits.down.sql":  {Data: []byte("DROP TABLE visits;")},
		"steps/0003_create_reports.up.sql":   {Data: []byte("CREATE TABLE reports (id bigserial PRIMARY KEY);")},
	}
}

func TestLoadOrdersSteps(t *testing.T) {
	track, err := Load("tenant", fixtureFS(), "steps")
	require.NoError(t, err)

	steps := track.Steps()
	require.Len(t, steps, 3)
	require.Equal(t, []int{1, 2, 3}, []int{steps[0].Revision, steps[1].Revision, steps[2].Revision})
	require.Equal(t, "create_members", steps[0].Name)
	require.NotEmpty(t, steps[0].DownSQL)
	require.Empty(t, steps[2].DownSQL)
	require.Equal(t, 3, track.Latest())
}

func TestLoadRejectsMalformedNames(t *testing.T) {
	fsys := fixtureFS()
	fsys["steps/notes.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}

	_, err := Load("tenant", fsys, "steps")
	require.ErrorContains(t, err, "unexpected file")
}

func TestLoadRejectsMissingUpScript(t *testing.T) {
	fsys := fstest.MapFS{
		"steps/0001_create_members.down.sql": {Data: []byte("DROP TABLE members;")},
	}

	_, err := Load("tenant", fsys, "steps")
	require.ErrorContains(t, err, "no up script")
}

func TestAscendingSelectsWindow(t *testing.T) {
	track, err := Load("tenant", fixtureFS(), "steps")
	require.NoError(t, err)

	steps, err := track.Ascending(1, ToLatest)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, 2, steps[0].Revision)
	require.Equal(t, 3, steps[1].Revision)

	steps, err = track.Ascending(3, ToLatest)
	require.NoError(t, err)
	require.Empty(t, steps)

	_, err = track.Ascending(0, 9)
	require.ErrorContains(t, err, "unknown target revision")
}

func TestDescendingReversesOrder(t *testing.T) {
	track, err := Load("tenant", fixtureFS(), "steps")
	require.NoError(t, err)

	steps, err := track.Descending(3, Unversioned)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	require.Equal(t, 3, steps[0].Revision)
	require.Equal(t, 1, steps[2].Revision)

	_, err = track.Descending(1, 2)
	require.ErrorContains(t, err, "cannot downgrade")
}
