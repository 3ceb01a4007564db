package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"vimospipe/fitsframe"
)

type item struct {
	Path string
	Plot bool
}

// listItems returns the QC plots in folder and folder/qc, then the FITS files
// in folder.
func listItems(folder string) ([]item, error) {
	var items []item
	for _, dir := range []string{folder, filepath.Join(folder, "qc")} {
		pngs, err := fitsframe.ListFits(dir, "*.png")
		if err != nil {
			if dir == folder {
				return nil, err
			}
			continue
		}
		for _, p := range pngs {
			items = append(items, item{Path: p, Plot: true})
		}
	}
	fits, err := fitsframe.ListFits(folder, fitsframe.DefaultPattern)
	if err != nil {
		return nil, err
	}
	for _, p := range fits {
		items = append(items, item{Path: p})
	}
	return items, nil
}

// firstImage returns the first HDU of path with at least two axes.
func firstImage(path string) (*fitsframe.Image, error) {
	tf, err := fitsframe.OpenTable(path)
	if err != nil {
		return nil, err
	}
	defer tf.Close()
	for hdu := 0; hdu < tf.NumHDU(); hdu++ {
		im, err := tf.Image(hdu)
		if err != nil || len(im.Axes) < 2 {
			continue
		}
		return im, nil
	}
	return nil, fmt.Errorf("%s has no image HDU", filepath.Base(path))
}

// describe is the line shown under the image.
func describe(it item, h fitsframe.Header) string {
	if it.Plot {
		return strings.TrimSuffix(filepath.Base(it.Path), ".png")
	}
	var parts []string
	if catg, err := h.String(fitsframe.ProductCategoryKey); err == nil {
		parts = append(parts, catg)
	}
	if date, err := h.String("DATE-OBS"); err == nil {
		parts = append(parts, strings.Replace(date, "T", " ", 1))
	}
	if setup, ok := fitsframe.InstrumentSetup(h); ok {
		parts = append(parts, setup.String())
	}
	if len(parts) == 0 {
		return "<no category or timestamp>"
	}
	return strings.Join(parts, "   ")
}

func setCenter(obj fyne.CanvasObject) {
	myWin.centerContent.Objects[0] = obj
	myWin.centerContent.Refresh()
}

func displayItem() {
	it := myWin.items[myWin.fileIndex]
	myWin.fileLabel.SetText(it.Path)
	myWin.current = nil

	if it.Plot {
		myWin.headerButton.Disable()
		myWin.autoButton.Disable()
		img := canvas.NewImageFromFile(it.Path)
		img.FillMode = canvas.ImageFillContain
		myWin.infoLabel.Text = describe(it, nil)
		myWin.infoLabel.Refresh()
		setCenter(img)
		return
	}

	myWin.headerButton.Enable()
	h, err := fitsframe.ReadPrimaryHeader(it.Path)
	if err != nil {
		log.Printf("%s: %v", it.Path, err)
	}
	myWin.infoLabel.Text = describe(it, h)
	myWin.infoLabel.Refresh()

	im, err := firstImage(it.Path)
	if err != nil {
		myWin.autoButton.Disable()
		setCenter(widget.NewLabel(err.Error()))
		return
	}
	lo, hi, err := fitsframe.DataRange(im.Data)
	if err != nil {
		myWin.autoButton.Disable()
		setCenter(widget.NewLabel(err.Error()))
		return
	}
	myWin.autoButton.Enable()
	myWin.current = im
	myWin.dataMin, myWin.dataMax = lo, hi
	redisplayFitsImage()
}

// level converts a contrast slider position to a data value.
func level(s *widget.Slider) float64 {
	return myWin.dataMin + (myWin.dataMax-myWin.dataMin)*s.Value/s.Max
}

func redisplayFitsImage() {
	if myWin.current == nil {
		return
	}
	img := canvas.NewImageFromImage(fitsframe.Preview(myWin.current, level(myWin.blackSlider), level(myWin.whiteSlider)))
	img.FillMode = canvas.ImageFillContain
	setCenter(img)
}

func autoContrast() {
	if myWin.current == nil {
		return
	}
	lo, hi, err := fitsframe.AutoLimits(myWin.current.Data)
	if err != nil || myWin.dataMax <= myWin.dataMin {
		return
	}
	span := myWin.dataMax - myWin.dataMin
	myWin.blackSlider.Value = 1000 * (lo - myWin.dataMin) / span
	myWin.whiteSlider.Value = 1000 * (hi - myWin.dataMin) / span
	myWin.blackSlider.Refresh()
	myWin.whiteSlider.Refresh()
	redisplayFitsImage()
}

func showHeader() {
	if len(myWin.items) == 0 {
		return
	}
	path := myWin.items[myWin.fileIndex].Path
	cards, err := fitsframe.Cards(path, 0)
	if err != nil {
		dialog.ShowError(err, myWin.parentWindow)
		return
	}
	headerWin := myWin.App.NewWindow(filepath.Base(path))
	headerWin.Resize(fyne.Size{Height: 600, Width: 700})
	text := strings.Join(fitsframe.FormatCards(cards), "\n")
	headerWin.SetContent(container.NewVScroll(widget.NewRichTextWithText(text)))
	headerWin.Show()
	headerWin.CenterOnScreen()
}
