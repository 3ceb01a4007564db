package main

import (
	"log"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

func processChosenFolderString(path string) {
	if path == "" {
		return
	}
	items, err := listItems(path)
	if err != nil {
		dialog.ShowError(err, myWin.parentWindow)
		return
	}
	if len(items) == 0 {
		dialog.ShowInformation("Oops", "No plots or .fits files were found there!", myWin.parentWindow)
		return
	}

	myWin.App.Preferences().SetString("lastFitsFolder", path)
	myWin.folderHistory = tidyHistory(addPathToHistory(myWin.folderHistory, path))
	saveFolderHistory()

	myWin.items = items
	myWin.fileIndex = 0
	myWin.fileSlider.Min = 0
	myWin.fileSlider.Max = float64(len(items) - 1)
	myWin.fileSlider.Value = 0
	myWin.fileSlider.Refresh()
	displayItem()
}

// addPathToHistory appends path unless it is already there.
func addPathToHistory(history []string, path string) []string {
	for _, folderName := range history {
		if folderName == path {
			return history
		}
	}
	return append(history, path)
}

// tidyHistory drops folders that were moved or deleted since they were opened.
func tidyHistory(history []string) []string {
	var tidy []string
	for _, folder := range history {
		if isDirectory(folder) {
			tidy = append(tidy, folder)
		}
	}
	return tidy
}

func removePath(paths []string, path string) []string {
	var newPaths []string
	for _, p := range paths {
		if p != path {
			newPaths = append(newPaths, p)
		}
	}
	return newPaths
}

func isDirectory(path string) bool {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fileInfo.IsDir()
}

func saveFolderHistory() {
	myWin.App.Preferences().SetStringList("folderHistory", myWin.folderHistory)
}

func openNewFolderDialog() {
	showFolder := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil {
			log.Println(err)
			return
		}
		if uri != nil {
			processChosenFolderString(uri.Path())
		}
	}, myWin.parentWindow)
	showFolder.Resize(fyne.Size{Width: 800, Height: 600})

	lastFolder := myWin.App.Preferences().StringWithFallback("lastFitsFolder", "")
	if lastFolder != "" {
		dir, err := storage.ListerForURI(storage.NewFileURI(lastFolder))
		if err != nil {
			myWin.App.Preferences().SetString("lastFitsFolder", "")
		} else {
			showFolder.SetLocation(dir)
		}
	}
	showFolder.Show()
}

func processFolderSelection(path string) {
	myWin.folderSelectWin.Close()
	if myWin.deletePathCheckbox.Checked {
		myWin.folderHistory = removePath(myWin.folderHistory, path)
		saveFolderHistory()
		return
	}
	processChosenFolderString(path)
}

// folderHistorySelect opens a window listing recently opened folders, with a
// way to remove entries and a button for the folder browser.
func folderHistorySelect() {
	myWin.folderHistory = tidyHistory(myWin.folderHistory)

	selector := widget.NewSelect(myWin.folderHistory, func(path string) { processFolderSelection(path) })
	selector.PlaceHolder = "Make selection from folder history ..."

	folderSelectWin := myWin.App.NewWindow("Folder history")
	myWin.folderSelectWin = folderSelectWin
	folderSelectWin.Resize(fyne.Size{Height: 450, Width: 700})

	myWin.deletePathCheckbox = widget.NewCheck("Delete path clicked on", func(bool) {})
	topLine := container.NewHBox(
		myWin.deletePathCheckbox,
		widget.NewButton("Open file browser", func() {
			folderSelectWin.Close()
			openNewFolderDialog()
		}),
		layout.NewSpacer())
	ctr := container.NewVBox(topLine, selector, layout.NewSpacer())
	folderSelectWin.SetContent(ctr)
	folderSelectWin.CenterOnScreen()
	folderSelectWin.Show()
}
