// SPDX-FileCopyrightText: 2025 The powercap Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, os.MkdirAll(p, 0755))
	}
}

func TestNewLocator(t *testing.T) {
	l := NewLocator("/sys")
	require.NotNil(t, l)
	assert.Equal(t, "/sys", l.sysfsPath)
	assert.Equal(t, defaultClassDir, l.classDir)
	assert.Equal(t, defaultCardPrefix, l.cardPrefix)
	assert.Equal(t, defaultHwmonSubdir, l.hwmonSubdir)
}

func TestNewLocatorOptions(t *testing.T) {
	l := NewLocator("/sys",
		WithClassDir("class/backlight"),
		WithCardPrefix("acpi"),
		WithHwmonSubdir("hwmon"),
	)

	assert.Equal(t, "class/backlight", l.classDir)
	assert.Equal(t, "acpi", l.cardPrefix)
	assert.Equal(t, "hwmon", l.hwmonSubdir)
}

func TestLocator_FindCardPath(t *testing.T) {
	sysfs := t.TempDir()
	mkdirs(t, filepath.Join(sysfs, "class/drm/card1"))

	l := NewLocator(sysfs)
	card, err := l.FindCardPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sysfs, "class/drm/card1"), card)
}

// TestLocator_FindCardPathFirstWins ensures the pick is the lexically first
// card entry, so repeated runs always land on the same device.
func TestLocator_FindCardPathFirstWins(t *testing.T) {
	sysfs := t.TempDir()
	mkdirs(t,
		filepath.Join(sysfs, "class/drm/card2"),
		filepath.Join(sysfs, "class/drm/card0"),
		filepath.Join(sysfs, "class/drm/card1"),
	)

	l := NewLocator(sysfs)

	for i := 0; i < 3; i++ {
		card, err := l.FindCardPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(sysfs, "class/drm/card0"), card)
	}
}

func TestLocator_FindCardPathSkipsOtherEntries(t *testing.T) {
	sysfs := t.TempDir()
	mkdirs(t,
		// render nodes and connector-less helpers live next to the cards
		filepath.Join(sysfs, "class/drm/renderD128"),
		filepath.Join(sysfs, "class/drm/card3"),
	)
	require.NoError(t, os.WriteFile(filepath.Join(sysfs, "class/drm/version"), []byte("drm 1.1.0\n"), 0644))

	l := NewLocator(sysfs)
	card, err := l.FindCardPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sysfs, "class/drm/card3"), card)
}

// TestLocator_FindCardPathSkipsFiles ensures a regular file that happens to
// match the prefix is not mistaken for a card.
func TestLocator_FindCardPathSkipsFiles(t *testing.T) {
	sysfs := t.TempDir()
	mkdirs(t, filepath.Join(sysfs, "class/drm/card7"))
	require.NoError(t, os.WriteFile(filepath.Join(sysfs, "class/drm/card5"), []byte("not a device"), 0644))

	l := NewLocator(sysfs)
	card, err := l.FindCardPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sysfs, "class/drm/card7"), card)
}

// TestLocator_FindCardPathFollowsSymlinks mirrors real sysfs, where class
// entries are symlinks into the device tree.
func TestLocator_FindCardPathFollowsSymlinks(t *testing.T) {
	sysfs := t.TempDir()
	target := filepath.Join(sysfs, "devices/pci0000:00/0000:00:03.1/drm/card1")
	mkdirs(t, target, filepath.Join(sysfs, "class/drm"))
	require.NoError(t, os.Symlink(target, filepath.Join(sysfs, "class/drm/card1")))

	l := NewLocator(sysfs)
	card, err := l.FindCardPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sysfs, "class/drm/card1"), card)
}

func TestLocator_FindCardPathNoClassDir(t *testing.T) {
	l := NewLocator(t.TempDir())

	_, err := l.FindCardPath()
	assert.Error(t, err)

	var notFound ErrCardNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "card", notFound.Prefix)
	assert.Contains(t, err.Error(), "unable to find gpu")
}

func TestLocator_FindCardPathNoCards(t *testing.T) {
	sysfs := t.TempDir()
	mkdirs(t, filepath.Join(sysfs, "class/drm/renderD128"))

	l := NewLocator(sysfs)
	_, err := l.FindCardPath()

	var notFound ErrCardNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, err.Error(), "unable to find gpu")
}

func TestLocator_FindHwmonPath(t *testing.T) {
	sysfs := t.TempDir()
	card := filepath.Join(sysfs, "class/drm/card1")
	mkdirs(t, filepath.Join(card, "device/hwmon/hwmon3"))

	l := NewLocator(sysfs)
	hwmon, err := l.FindHwmonPath(card)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(card, "device/hwmon/hwmon3"), hwmon)
}

// TestLocator_FindHwmonPathFirstWins ensures repeated lookups within a run
// land on the same hwmon directory when several exist.
func TestLocator_FindHwmonPathFirstWins(t *testing.T) {
	sysfs := t.TempDir()
	card := filepath.Join(sysfs, "class/drm/card1")
	mkdirs(t,
		filepath.Join(card, "device/hwmon/hwmon4"),
		filepath.Join(card, "device/hwmon/hwmon2"),
	)

	l := NewLocator(sysfs)

	for i := 0; i < 3; i++ {
		hwmon, err := l.FindHwmonPath(card)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(card, "device/hwmon/hwmon2"), hwmon)
	}
}

func TestLocator_FindHwmonPathMissing(t *testing.T) {
	sysfs := t.TempDir()
	card := filepath.Join(sysfs, "class/drm/card1")
	mkdirs(t, card) // no device/hwmon below

	l := NewLocator(sysfs)
	_, err := l.FindHwmonPath(card)

	var notFound ErrHwmonNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, card, notFound.Card)
	assert.Contains(t, err.Error(), "unable to find hwmon entries for "+card)
}

func TestLocator_FindHwmonPathEmpty(t *testing.T) {
	sysfs := t.TempDir()
	card := filepath.Join(sysfs, "class/drm/card1")
	mkdirs(t, filepath.Join(card, "device/hwmon"))
	require.NoError(t, os.WriteFile(filepath.Join(card, "device/hwmon/uevent"), []byte{}, 0644))

	l := NewLocator(sysfs)
	_, err := l.FindHwmonPath(card)

	var notFound ErrHwmonNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestLocator_Locate(t *testing.T) {
	sysfs := t.TempDir()
	hwmon := filepath.Join(sysfs, "class/drm/card1/device/hwmon/hwmon3")
	mkdirs(t, hwmon)

	l := NewLocator(sysfs)
	paths, err := l.Locate()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sysfs, "class/drm/card1"), paths.Card)
	assert.Equal(t, hwmon, paths.Hwmon)
}

func TestLocator_LocateErrors(t *testing.T) {
	t.Run("no card", func(t *testing.T) {
		l := NewLocator(t.TempDir())
		_, err := l.Locate()

		var notFound ErrCardNotFound
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("card without hwmon", func(t *testing.T) {
		sysfs := t.TempDir()
		mkdirs(t, filepath.Join(sysfs, "class/drm/card1"))

		l := NewLocator(sysfs)
		_, err := l.Locate()

		var notFound ErrHwmonNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}
