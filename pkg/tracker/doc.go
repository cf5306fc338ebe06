/*
Package tracker implements C4, the Target Tracker. It owns the single
desired set of tenant keys and is the only writer of that set; C6 feeds it
queue observations and confirmed removals, C5 subscribes to the resulting
Added/Removed stream.

Removals are debounced by the configured extra-lifetime: ConfirmRemoval
schedules a removal that a later ObserveQueue or ObserveAPIRequest for the
same key cancels, so a key that flaps around the staleness boundary does not
produce a notification storm.
*/
package tracker
