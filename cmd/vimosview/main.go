// Command vimosview browses a reduction directory: the QC plots written by
// "vimospipe qc" and the FITS products next to them, with their headers.
package main

import (
	_ "embed"
	"flag"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"vimospipe/fitsframe"
)

type viewer struct {
	App           fyne.App
	parentWindow  fyne.Window
	centerContent *fyne.Container
	fileSlider    *widget.Slider
	blackSlider   *widget.Slider
	whiteSlider   *widget.Slider
	fileLabel     *widget.Label
	infoLabel     *canvas.Text
	headerButton  *widget.Button
	autoButton    *widget.Button

	items     []item
	fileIndex int
	// current is the decoded FITS image on display, nil for plots.
	current          *fitsframe.Image
	dataMin, dataMax float64

	folderHistory      []string
	cmdLineFolder      string
	folderSelectWin    fyne.Window
	deletePathCheckbox *widget.Check
}

const version = " 0.4.0"

//go:embed help.txt
var helpText string

var myWin viewer

func main() {
	light := flag.Bool("light", false, "start with the light theme")
	flag.Parse()
	myWin.cmdLineFolder = flag.Arg(0)

	myApp := app.NewWithID("org.vimospipe.view")
	myWin.App = myApp

	variant := theme.VariantDark
	if *light {
		variant = theme.VariantLight
	}
	myApp.Settings().SetTheme(&forcedVariant{Theme: theme.DefaultTheme(), variant: variant})

	myWin.folderHistory = myApp.Preferences().StringList("folderHistory")

	w := myApp.NewWindow("VIMOS reduction viewer" + version)
	w.Resize(fyne.Size{Height: 800, Width: 1200})
	myWin.parentWindow = w

	// The contrast sliders run over 0..1000 of the data range of the image.
	myWin.blackSlider = widget.NewSlider(0, 1000)
	myWin.blackSlider.Orientation = widget.Vertical
	myWin.blackSlider.OnChanged = func(float64) { redisplayFitsImage() }
	myWin.whiteSlider = widget.NewSlider(0, 1000)
	myWin.whiteSlider.Orientation = widget.Vertical
	myWin.whiteSlider.Value = 1000
	myWin.whiteSlider.OnChanged = func(float64) { redisplayFitsImage() }
	rightItem := container.NewHBox(myWin.blackSlider, myWin.whiteSlider)

	leftItem := container.NewVBox()
	leftItem.Add(widget.NewButton("Open folder", func() { openNewFolderDialog() }))
	leftItem.Add(widget.NewButton("Folder history", func() { folderHistorySelect() }))
	myWin.headerButton = widget.NewButton("Show header", func() { showHeader() })
	leftItem.Add(myWin.headerButton)
	myWin.autoButton = widget.NewButton("Auto contrast", func() { autoContrast() })
	leftItem.Add(myWin.autoButton)
	leftItem.Add(widget.NewButton("Help", func() { showHelp() }))
	leftItem.Add(layout.NewSpacer())
	leftItem.Add(widget.NewButton("Dark theme", func() {
		myApp.Settings().SetTheme(&forcedVariant{Theme: theme.DefaultTheme(), variant: theme.VariantDark})
	}))
	leftItem.Add(widget.NewButton("Light theme", func() {
		myApp.Settings().SetTheme(&forcedVariant{Theme: theme.DefaultTheme(), variant: theme.VariantLight})
	}))
	myWin.headerButton.Disable()
	myWin.autoButton.Disable()

	myWin.fileLabel = widget.NewLabel("Open a reduction folder")
	myWin.infoLabel = canvas.NewText("", color.NRGBA{R: 255, A: 255})
	myWin.infoLabel.TextSize = 20

	myWin.fileSlider = widget.NewSlider(0, 0)
	myWin.fileSlider.OnChanged = func(value float64) { processFileSliderMove(value) }

	toolBar := container.NewHBox(
		layout.NewSpacer(),
		widget.NewButton("-1", func() { processBackOneFrame() }),
		widget.NewButton("+1", func() { processForwardOneFrame() }),
		layout.NewSpacer(),
	)
	row1 := container.NewHBox(layout.NewSpacer(), myWin.infoLabel, layout.NewSpacer())
	row2 := container.NewHBox(layout.NewSpacer(), myWin.fileLabel, layout.NewSpacer())
	bottomItem := container.NewVBox(myWin.fileSlider, toolBar, row1, row2)

	myWin.centerContent = container.NewBorder(nil, bottomItem, leftItem, rightItem, widget.NewLabel(""))
	w.SetContent(myWin.centerContent)
	w.CenterOnScreen()

	if myWin.cmdLineFolder != "" {
		processChosenFolderString(myWin.cmdLineFolder)
	}
	w.ShowAndRun()
}

type forcedVariant struct {
	fyne.Theme

	variant fyne.ThemeVariant
}

func (f *forcedVariant) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	return f.Theme.Color(name, f.variant)
}

func processBackOneFrame() {
	if len(myWin.items) == 0 || myWin.fileIndex == 0 {
		return
	}
	myWin.fileSlider.SetValue(float64(myWin.fileIndex - 1)) // calls processFileSliderMove
}

func processForwardOneFrame() {
	if myWin.fileIndex >= len(myWin.items)-1 {
		return
	}
	myWin.fileSlider.SetValue(float64(myWin.fileIndex + 1))
}

func processFileSliderMove(position float64) {
	if len(myWin.items) == 0 {
		return
	}
	myWin.fileIndex = int(position)
	displayItem()
}

func showHelp() {
	helpWin := myWin.App.NewWindow("Help")
	helpWin.Resize(fyne.Size{Height: 450, Width: 700})
	helpWin.SetContent(container.NewVScroll(widget.NewRichTextWithText(helpText)))
	helpWin.Show()
	helpWin.CenterOnScreen()
}
